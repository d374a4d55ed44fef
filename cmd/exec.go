package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	pubnub "github.com/pubnub/go/v7"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"nft-ticket/config"
	"nft-ticket/internal/handlers"
	"nft-ticket/internal/services"
	"nft-ticket/internal/services/pinata"
	"nft-ticket/internal/services/stacks"
	"nft-ticket/internal/store"
	"nft-ticket/internal/wallet"
	"nft-ticket/monitoring"
	"nft-ticket/security"
	"nft-ticket/utils"
)

const markPastInterval = time.Hour

// deps is everything built from the configuration before the app starts.
type deps struct {
	cfg      *config.Config
	redis    *redis.Client
	network  stacks.Network
	contract stacks.Contract
	account  *stacks.Account
	chain    *stacks.Client
	notifier services.Notifier

	events     *store.EventStore
	submitter  *services.Submitter
	poller     *services.Poller
	reconciler *services.Reconciler
}

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient, err := utils.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	d, err := build(app, cfg, redisClient)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize services
	tickets := store.NewTicketStore(redisClient)
	jobs := store.NewMintJobStore(redisClient)
	pinner := pinata.NewClient(pinata.Config{
		BaseURL:      cfg.PinataAPIURL,
		APIKey:       cfg.PinataAPIKey,
		SecretAPIKey: cfg.PinataSecretAPIKey,
	})
	sessionService := services.NewSessionService(redisClient, d.network, cfg.SessionTTL)
	eventService := services.NewEventService(d.events, pinner, d.network, cfg.IPFSGateway)
	ticketService := services.NewTicketService(tickets, d.chain, d.contract)
	purchaseService := services.NewPurchaseService(ctx, d.events, jobs, d.submitter, d.poller, d.reconciler, d.notifier, services.PurchaseConfig{
		PaymentRecipient: d.contract.Address,
		MintURIGateway:   cfg.MintURIGateway,
	})

	var devSigner wallet.Signer
	if d.account != nil && !cfg.IsProduction() {
		devSigner = wallet.NewKeySigner(d.account, d.chain, cfg.StacksTxFee)
	}

	// Initialize handlers
	mintHandler := handlers.NewMintHandler(d.submitter, purchaseService, sessionService, cfg.IsProduction())
	sessionHandler := handlers.NewSessionHandler(sessionService)
	eventHandler := handlers.NewEventHandler(eventService, purchaseService, sessionService)
	ticketHandler := handlers.NewTicketHandler(ticketService, sessionService, d.network)
	paymentHandler := handlers.NewPaymentHandler(eventService, d.chain, devSigner, d.contract.Address)
	adminHandler := handlers.NewAdminHandler(purchaseService, func(context.Context) error {
		return utils.RedisHealthCheck(redisClient)
	}, func(ctx context.Context) (uint64, error) {
		return d.chain.LastTokenID(ctx, d.contract)
	}, d.network.Name, d.contract.ID())
	limiter := security.NewRateLimiter(redisClient, cfg.RateLimitPerMinute)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})
	app.RootCmd.AddCommand(recoverMintCommand(app, d))

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Start background tasks
		if cfg.EnableMetrics {
			go monitoring.Serve(ctx, ":"+cfg.MetricsPort, limiter.EchoMiddleware("metrics"))
			go monitoring.NewMonitor(redisClient).Run(ctx)
		}
		go markPastEvents(ctx, d.events)
		go resumePending(ctx, purchaseService)

		// Mint endpoints used by the web client
		e.Router.POST("/api/mint-nft", mintHandler.MintNFT).BindFunc(limiter.Limit("mint"))
		e.Router.POST("/api/upload", eventHandler.UploadEventAssets).BindFunc(limiter.Limit("upload"))

		api := e.Router.Group("/api/v1")
		api.BindFunc(limiter.AntiBot())

		// Session endpoints
		api.POST("/session/connect", sessionHandler.Connect)
		api.GET("/session", sessionHandler.Current)
		api.POST("/session/disconnect", sessionHandler.Disconnect)

		// Event endpoints
		api.GET("/events", eventHandler.ListEvents)
		api.GET("/events/{eventId}", eventHandler.GetEvent)
		api.POST("/events", eventHandler.CreateEvent).BindFunc(limiter.Limit("upload"))
		api.POST("/events/{eventId}/purchase", eventHandler.PurchaseTicket).BindFunc(limiter.Limit("purchase"))

		// Mint job endpoints
		api.GET("/mint/{txid}", mintHandler.GetMintStatus)
		api.POST("/mint/{txid}/cancel", mintHandler.CancelMint)
		api.POST("/mint/recover", mintHandler.RecoverMint).BindFunc(limiter.Limit("recover"))

		// Ticket endpoints
		api.GET("/tickets", ticketHandler.MyTickets)
		api.POST("/tickets/{tokenId}/presence", ticketHandler.ConfirmPresence)
		api.GET("/nfts/{address}", ticketHandler.WalletNFTs)

		// Payment endpoints
		api.GET("/payments/{txid}", paymentHandler.GetPaymentStatus)

		// Admin endpoints
		api.GET("/admin/mints", adminHandler.PendingMints)

		// Test endpoint for payment simulation
		if devSigner != nil {
			api.POST("/test/simulate-payment", paymentHandler.SimulatePayment)
		}

		// Health check
		e.Router.GET("/health", adminHandler.Health)

		log.Println("Server routes registered")
		return e.Next()
	})

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		cancel()
		purchaseService.Wait()
		return e.Next()
	})

	// Start server
	return app.Start()
}

// build wires the chain, storage and notification layers shared by the
// server and the recover-mint command.
func build(app *pocketbase.PocketBase, cfg *config.Config, redisClient *redis.Client) (*deps, error) {
	network, err := stacks.ParseNetwork(cfg.StacksNetwork)
	if err != nil {
		return nil, err
	}
	contract := stacks.Contract{Address: cfg.ContractAddress, Name: cfg.ContractName}
	if err := network.ValidateAddress(contract.Address); err != nil {
		return nil, fmt.Errorf("CONTRACT_ADDRESS: %w", err)
	}

	var account *stacks.Account
	if cfg.StacksPrivateKey != "" {
		account, err = stacks.ParseAccount(cfg.StacksPrivateKey, network)
		if err != nil {
			return nil, fmt.Errorf("STACKS_PRIVATE_KEY: %w", err)
		}
		if account.Address() != contract.Address {
			slog.Warn("signing key is not the contract deployer; mints will abort", "signer", account.Address(), "contract", contract.ID())
		}
	} else {
		log.Println("STACKS_PRIVATE_KEY not set, minting is disabled")
	}

	chain := stacks.NewClient(stacks.ClientConfig{BaseURL: cfg.StacksAPIURL})

	var notifier services.Notifier = services.NopNotifier{}
	if cfg.PubNubPublishKey != "" {
		// Initialize PubNub
		pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.PubNubUserID))
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey
		notifier = services.NewPubNubNotifier(pubnub.NewPubNub(pnConfig))
	}

	events := store.NewEventStore(app)
	poller := services.NewPoller(chain, cfg.TxPollInterval)
	return &deps{
		cfg:      cfg,
		redis:    redisClient,
		network:  network,
		contract: contract,
		account:  account,
		chain:    chain,
		notifier: notifier,
		events:   events,
		submitter: services.NewSubmitter(chain, services.SubmitterConfig{
			Network:       network,
			Contract:      contract,
			Account:       account,
			Fee:           cfg.StacksTxFee,
			RecencyWindow: cfg.WalletRecencyWindow,
		}),
		poller:     poller,
		reconciler: services.NewReconciler(events, store.NewTicketStore(redisClient), store.NewMintJobStore(redisClient), notifier, poller, contract),
	}, nil
}

// recoverMintCommand polls a tx id in the foreground and reconciles it. It is
// for operators whose server lost a poller.
func recoverMintCommand(app *pocketbase.PocketBase, d *deps) *cobra.Command {
	in := services.ReconcileInput{Operator: true}
	command := &cobra.Command{
		Use:   "recover-mint",
		Short: "Poll a mint transaction to completion and record its ticket",
		RunE: func(command *cobra.Command, args []string) error {
			if !app.IsBootstrapped() {
				if err := app.Bootstrap(); err != nil {
					return err
				}
			}
			ctx, stop := signal.NotifyContext(command.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := d.reconciler.Recover(ctx, in, func(p services.PollProgress) {
				log.Printf("attempt %d: %s", p.Attempt, p.Status)
			})
			if err != nil {
				return err
			}
			log.Printf("%s: %s", res.Outcome.Kind, res.Outcome.Message)
			if res.Ticket != nil {
				log.Printf("ticket #%d owned by %s (duplicate: %v)", res.Ticket.TokenID, res.Ticket.Owner, res.Duplicate)
			}
			return nil
		},
	}
	command.Flags().StringVar(&in.TxID, "txid", "", "mint transaction id")
	command.Flags().StringVar(&in.EventID, "event", "", "event id the ticket belongs to")
	command.Flags().StringVar(&in.Owner, "owner", "", "ticket owner address")
	command.MarkFlagRequired("txid")
	command.MarkFlagRequired("event")
	command.MarkFlagRequired("owner")
	return command
}

func markPastEvents(ctx context.Context, events *store.EventStore) {
	ticker := time.NewTicker(markPastInterval)
	defer ticker.Stop()
	for {
		if n, err := events.MarkPast(ctx, time.Now()); err != nil {
			slog.Error("events.MarkPast()", "error", err)
		} else if n > 0 {
			slog.Info("events marked past", "count", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func resumePending(ctx context.Context, purchases *services.PurchaseService) {
	n, err := purchases.ResumePending(ctx)
	if err != nil {
		slog.Error("purchases.ResumePending()", "error", err)
		return
	}
	log.Printf("Resumed %d pending mint pollers", n)
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
