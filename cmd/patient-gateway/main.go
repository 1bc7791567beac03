// The patient-gateway session connects an account to the consent ledger.
// The default command watches for incoming access requests; further commands
// resolve requests, revoke grants, manage guardians, drive emergency
// unlocks, and move encrypted records in and out of the local store.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/MedVaultTech/ConsentNetwork/internal/config"
	"github.com/MedVaultTech/ConsentNetwork/internal/coordinator"
	"github.com/MedVaultTech/ConsentNetwork/internal/directory"
	"github.com/MedVaultTech/ConsentNetwork/internal/gateway"
	"github.com/MedVaultTech/ConsentNetwork/internal/guardian"
	"github.com/MedVaultTech/ConsentNetwork/internal/ledger"
	"github.com/MedVaultTech/ConsentNetwork/internal/records"
	"github.com/MedVaultTech/ConsentNetwork/internal/relay"
)

const usage = `usage: patient-gateway <command> [args]

  watch                                  follow incoming access requests (default)
  approve <requestID>                    approve a pending request
  reject <requestID>                     reject a pending request
  request <patientID>                    file an access request (doctor session)
  revoke <doctorID>                      revoke a doctor's grant
  grants                                 list the grant history
  upload <file> <mimeType> <reportType>  encrypt and store a record
  fetch <address> <outFile>              retrieve and decrypt a record
  guardians <addr,addr,...> [policy] [threshold]
                                         replace the guardian set
  emergency <init|approve|end> <patientID>
                                         drive an emergency unlock
`

type session struct {
	cfg     config.Config
	log     *zap.Logger
	consent *ledger.Client
	reg     *guardian.Client
	store   *records.Store
	coord   *coordinator.Coordinator
	relay   *relay.Relay
}

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()

	cfg := config.Load()
	if cfg.Account == "" {
		log.Fatal("CONSENTNET_ACCOUNT must be set to the session's account")
	}

	gw, conn, err := gateway.Connect(gateway.Config{
		MSPID:        cfg.MSPID,
		CertPath:     cfg.CertPath,
		KeyPath:      cfg.KeyPath,
		TLSCertPath:  cfg.TLSCertPath,
		PeerEndpoint: cfg.PeerEndpoint,
		GatewayPeer:  cfg.GatewayPeer,
	})
	if err != nil {
		log.Fatal("gateway connection failed", zap.Error(err))
	}
	defer conn.Close()
	defer gw.Close()

	network := gw.GetNetwork(cfg.ChannelName)
	contract := network.GetContract(cfg.ChaincodeName)

	blobs, err := records.OpenLevelBlobStore(cfg.RecordsPath)
	if err != nil {
		log.Fatal("record store unavailable", zap.Error(err))
	}
	defer blobs.Close()

	consent := ledger.New(contract, log.Named("ledger"))
	dir := directory.New(cfg.DirectoryURL, cfg.DirectoryToken, log.Named("directory"))
	coord := coordinator.New(consent, dir, cfg.Account, cfg.Lookback, log.Named("coordinator"))

	s := &session{
		cfg:     cfg,
		log:     log,
		consent: consent,
		reg:     guardian.New(contract, log.Named("guardian")),
		store:   records.NewStore(blobs, log.Named("records")),
		coord:   coord,
		relay:   relay.New(network, cfg.ChaincodeName, cfg.Account, cfg.Debounce, coord, log.Named("relay")),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := "watch"
	args := []string{}
	if len(os.Args) > 1 {
		command = os.Args[1]
		args = os.Args[2:]
	}

	if err := s.run(ctx, command, args); err != nil {
		log.Fatal("command failed", zap.String("command", command), zap.Error(err))
	}
}

func (s *session) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "watch":
		return s.watch(ctx)
	case "approve", "reject":
		if len(args) != 1 {
			return errors.New(usage)
		}
		if err := s.coord.Resync(ctx); err != nil {
			return err
		}
		if command == "approve" {
			return s.coord.Approve(ctx, args[0])
		}
		return s.coord.Reject(ctx, args[0])
	case "request":
		if len(args) != 1 {
			return errors.New(usage)
		}
		requestID, err := s.consent.RequestAccess(ctx, s.cfg.Account, args[0])
		if err != nil {
			return err
		}
		fmt.Println(requestID)
		return nil
	case "revoke":
		if len(args) != 1 {
			return errors.New(usage)
		}
		return s.consent.RevokeAccess(ctx, s.cfg.Account, args[0])
	case "grants":
		grants, err := s.consent.Grants(ctx, s.cfg.Account)
		if err != nil {
			return err
		}
		for _, grant := range grants {
			state := "active"
			if grant.Revoked {
				state = "revoked"
			}
			fmt.Printf("%s\t%s\t%s\temergency=%v\n", grant.GrantID, grant.DoctorID, state, grant.Emergency)
		}
		return nil
	case "upload":
		if len(args) != 3 {
			return errors.New(usage)
		}
		return s.upload(args[0], args[1], args[2])
	case "fetch":
		if len(args) != 2 {
			return errors.New(usage)
		}
		return s.fetch(args[0], args[1])
	case "guardians":
		if len(args) < 1 {
			return errors.New(usage)
		}
		policy := ""
		threshold := 0
		if len(args) > 1 {
			policy = args[1]
		}
		if len(args) > 2 {
			parsed, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid quorum threshold: %w", err)
			}
			threshold = parsed
		}
		return s.reg.AssignGuardians(ctx, s.cfg.Account, strings.Split(args[0], ","), policy, threshold)
	case "emergency":
		if len(args) != 2 {
			return errors.New(usage)
		}
		return s.emergency(ctx, args[0], args[1])
	default:
		return errors.New(usage)
	}
}

func (s *session) watch(ctx context.Context) error {
	if err := s.coord.Resync(ctx); err != nil {
		return fmt.Errorf("initial re-sync failed: %w", err)
	}
	for _, pending := range s.coord.Pending() {
		s.log.Info("pending access request",
			zap.String("requestID", pending.RequestID),
			zap.String("doctor", pending.Doctor.Name),
			zap.String("address", pending.DoctorID),
			zap.Time("createdAt", pending.CreatedAt))
	}

	if err := s.relay.Start(ctx); err != nil {
		return err
	}
	defer s.relay.Close()

	s.log.Info("session ready",
		zap.String("account", s.cfg.Account),
		zap.String("channel", s.cfg.ChannelName),
		zap.String("chaincode", s.cfg.ChaincodeName))

	<-ctx.Done()
	s.log.Info("session shutting down")
	return nil
}

func (s *session) upload(path, mimeType, reportType string) error {
	key, err := records.DeriveKey(os.Getenv("CONSENTNET_PASSPHRASE"), s.cfg.Account)
	if err != nil {
		return err
	}

	plaintext, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	address, err := s.store.Upload(key, plaintext, records.Metadata{
		Owner:      s.cfg.Account,
		MimeType:   mimeType,
		ReportType: reportType,
	})
	if err != nil {
		return err
	}
	fmt.Println(address)
	return nil
}

func (s *session) fetch(address, outPath string) error {
	key, err := records.DeriveKey(os.Getenv("CONSENTNET_PASSPHRASE"), s.cfg.Account)
	if err != nil {
		return err
	}

	plaintext, mimeType, err := s.store.Retrieve(address, key)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, plaintext, 0o600); err != nil {
		return err
	}
	s.log.Info("record fetched",
		zap.String("address", address),
		zap.String("mimeType", mimeType),
		zap.String("out", outPath))
	return nil
}

func (s *session) emergency(ctx context.Context, action, patientID string) error {
	switch action {
	case "init":
		status, err := s.reg.InitiateEmergencyUnlock(ctx, patientID, s.cfg.Account)
		if err != nil {
			return err
		}
		fmt.Printf("approvals %d/%d active=%v\n", status.Approvals, status.Quorum, status.Active)
		return nil
	case "approve":
		status, err := s.reg.ApproveEmergencyUnlock(ctx, patientID, s.cfg.Account)
		if err != nil {
			return err
		}
		fmt.Printf("approvals %d/%d active=%v\n", status.Approvals, status.Quorum, status.Active)
		return nil
	case "end":
		terminated, err := s.reg.TerminateEmergencyUnlock(ctx, patientID, s.cfg.Account)
		if err != nil {
			return err
		}
		if !terminated {
			fmt.Println("termination vote recorded, quorum not yet reached")
		}
		return nil
	default:
		return errors.New(usage)
	}
}
