package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/clubworks/backend/internal/config"
	"github.com/clubworks/backend/internal/dispatch"
	"github.com/clubworks/backend/internal/integration"
	"github.com/clubworks/backend/internal/platform/postgres"
	"github.com/clubworks/backend/internal/task"
	"github.com/clubworks/backend/internal/worker"
)

// integrationServices bundles the external capability clients the workers
// use. Deployments replace these with real clients; the defaults are noops
// so the machinery runs without credentials.
type integrationServices struct {
	chat          integration.ChatService
	wiki          integration.WikiService
	storage       integration.StorageService
	sourceControl integration.SourceControlService
	identity      integration.IdentityService
	email         integration.EmailService
	qrCode        integration.QRCodeGenerator
	payment       integration.PaymentProvider
}

// defaultIntegrations returns the noop client set.
func defaultIntegrations(logger *slog.Logger) integrationServices {
	return integrationServices{
		chat:          &integration.NoopChat{Logger: logger},
		wiki:          integration.NoopWiki{},
		storage:       integration.NoopStorage{},
		sourceControl: integration.NoopSourceControl{},
		identity:      integration.NoopIdentity{},
		email:         &integration.NoopEmail{Logger: logger},
		qrCode:        integration.NoopQRCode{},
		payment:       integration.NoopPayment{},
	}
}

// application holds the wired dependency graph for the server.
type application struct {
	config       *config.Config
	logger       *slog.Logger
	db           *sql.DB
	taskManager  *task.Manager
	batchManager *task.BatchManager
	dispatcher   *dispatch.Dispatcher
	reconciler   *task.Reconciler
}

// newApplication wires stores, the task layer, the workers and the
// dispatcher. It does not start anything; run() owns the lifecycle.
func newApplication(cfg *config.Config, logger *slog.Logger, db *sql.DB, ints integrationServices) (*application, error) {
	taskStore := postgres.NewPostgresTaskStore(db)
	jobStore := postgres.NewPostgresJobStore(db)

	taskManager := task.NewManager(taskStore, logger)
	batchManager := task.NewBatchManager(taskManager, logger)

	provisioner := worker.NewProvisioner(
		taskManager,
		ints.chat,
		ints.wiki,
		ints.storage,
		ints.sourceControl,
		ints.identity,
		logger,
	)
	roleBatcher := worker.NewRoleBatcher(batchManager, ints.chat, logger)
	mailer := worker.NewMailer(ints.email, logger)
	qrWorker := worker.NewQRCodeWorker(ints.qrCode, logger)
	paymentWorker := worker.NewPaymentStatusWorker(ints.payment, logger)
	groupSyncWorker := worker.NewGroupSyncWorker(ints.identity, logger)

	dispatcher := dispatch.NewDispatcher(cfg.Queue, jobStore, taskManager, dispatch.Handlers{
		Email:         mailer.Handle,
		QRCode:        qrWorker.Handle,
		SyncGroups:    groupSyncWorker.Handle,
		Provision:     provisioner.Handle,
		PaymentStatus: paymentWorker.Handle,
		Discord:       roleBatcher.Handle,
	}, logger)

	reconciler := task.NewReconciler(taskManager, taskStore, jobStore, task.ReconcilerConfig{
		CheckInterval: time.Duration(cfg.Task.ReconcileIntervalMinutes) * time.Minute,
		StaleTaskAge:  time.Duration(cfg.Task.StaleTaskAgeMinutes) * time.Minute,
	}, logger)

	return &application{
		config:       cfg,
		logger:       logger,
		db:           db,
		taskManager:  taskManager,
		batchManager: batchManager,
		dispatcher:   dispatcher,
		reconciler:   reconciler,
	}, nil
}

// start launches the queues and the reconciler.
func (app *application) start() error {
	if err := app.dispatcher.Start(); err != nil {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}
	app.reconciler.Start()
	return nil
}

// cleanup stops background work and releases resources, in reverse
// dependency order.
func (app *application) cleanup() {
	app.reconciler.Stop()
	app.dispatcher.Close()

	if err := app.db.Close(); err != nil {
		app.logger.Error("failed to close database connection", "error", err)
	}
}
