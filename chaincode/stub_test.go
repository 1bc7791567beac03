package chaincode

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hyperledger/fabric-chaincode-go/pkg/cid"
	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric-protos-go/ledger/queryresult"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// fakeWorld is an in-memory ledger shared by the transaction contexts a test
// opens. Every as() call is a fresh transaction with its own ID and a clock
// advanced by one second.
type fakeWorld struct {
	state  map[string][]byte
	events []recordedEvent
	txSeq  int
	now    int64
}

type recordedEvent struct {
	name    string
	payload []byte
}

func newWorld() *fakeWorld {
	return &fakeWorld{state: make(map[string][]byte), now: 1700000000}
}

// as opens a transaction context signed by an identity carrying the account
// attribute for the given account.
func (w *fakeWorld) as(account string) *fakeContext {
	ctx := w.anonymous()
	ctx.identity.account = account
	ctx.identity.hasAttribute = true
	return ctx
}

// anonymous opens a transaction context for an identity enrolled without the
// account attribute.
func (w *fakeWorld) anonymous() *fakeContext {
	w.txSeq++
	w.now++
	return &fakeContext{
		stub:     &fakeStub{world: w, txID: fmt.Sprintf("tx-%04d", w.txSeq), ts: w.now},
		identity: &fakeIdentity{},
	}
}

func (w *fakeWorld) eventsNamed(name string) []recordedEvent {
	var out []recordedEvent
	for _, ev := range w.events {
		if ev.name == name {
			out = append(out, ev)
		}
	}
	return out
}

type fakeContext struct {
	contractapi.TransactionContextInterface
	stub     *fakeStub
	identity *fakeIdentity
}

func (c *fakeContext) GetStub() shim.ChaincodeStubInterface { return c.stub }

func (c *fakeContext) GetClientIdentity() cid.ClientIdentity { return c.identity }

type fakeIdentity struct {
	cid.ClientIdentity
	account      string
	hasAttribute bool
}

func (f *fakeIdentity) GetAttributeValue(name string) (string, bool, error) {
	if name != accountAttribute || !f.hasAttribute {
		return "", false, nil
	}
	return f.account, true, nil
}

type fakeStub struct {
	shim.ChaincodeStubInterface
	world *fakeWorld
	txID  string
	ts    int64
}

func (s *fakeStub) GetState(key string) ([]byte, error) {
	return s.world.state[key], nil
}

func (s *fakeStub) PutState(key string, value []byte) error {
	s.world.state[key] = value
	return nil
}

// Same shape the shim produces: a leading null, then every component
// null-terminated, so partial keys are exact prefixes.
func (s *fakeStub) CreateCompositeKey(objectType string, attributes []string) (string, error) {
	key := string(rune(0)) + objectType + string(rune(0))
	for _, attr := range attributes {
		key += attr + string(rune(0))
	}
	return key, nil
}

func (s *fakeStub) GetStateByPartialCompositeKey(objectType string, keys []string) (shim.StateQueryIteratorInterface, error) {
	prefix, err := s.CreateCompositeKey(objectType, keys)
	if err != nil {
		return nil, err
	}

	var matched []string
	for key := range s.world.state {
		if strings.HasPrefix(key, prefix) {
			matched = append(matched, key)
		}
	}
	sort.Strings(matched)

	it := &fakeIterator{}
	for _, key := range matched {
		it.kvs = append(it.kvs, &queryresult.KV{Key: key, Value: s.world.state[key]})
	}
	return it, nil
}

func (s *fakeStub) GetTxID() string {
	return s.txID
}

func (s *fakeStub) GetTxTimestamp() (*timestamppb.Timestamp, error) {
	return &timestamppb.Timestamp{Seconds: s.ts}, nil
}

func (s *fakeStub) SetEvent(name string, payload []byte) error {
	s.world.events = append(s.world.events, recordedEvent{name: name, payload: payload})
	return nil
}

type fakeIterator struct {
	shim.StateQueryIteratorInterface
	kvs []*queryresult.KV
	pos int
}

func (it *fakeIterator) HasNext() bool {
	return it.pos < len(it.kvs)
}

func (it *fakeIterator) Next() (*queryresult.KV, error) {
	kv := it.kvs[it.pos]
	it.pos++
	return kv, nil
}

func (it *fakeIterator) Close() error {
	return nil
}
