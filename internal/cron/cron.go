package cron

import (
	"context"
	"os"
	"sync"
	"time"

	cronv3 "github.com/robfig/cron/v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/customeros/mailprobe/config"
	"github.com/customeros/mailprobe/interfaces"
	"github.com/customeros/mailprobe/internal/enum"
	"github.com/customeros/mailprobe/internal/logger"
	"github.com/customeros/mailprobe/internal/metrics"
	"github.com/customeros/mailprobe/internal/tracing"
)

const (
	// GroupBatches serializes jobs that rewrite batch records
	GroupBatches = "batches"

	// LeaseDuration is how long a lease lasts before needing renewal
	LeaseDuration = 15 * time.Second
	// RenewDeadline is how long a leader has to renew its lease
	RenewDeadline = 10 * time.Second
	// RetryPeriod is how long to wait between leadership attempts
	RetryPeriod = 2 * time.Second

	leaseName = "mailprobe-cron-leader"
)

var jobLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{
	locks: map[string]*sync.Mutex{
		GroupBatches: new(sync.Mutex),
	},
}

type CronManager struct {
	cfg      *config.Config
	log      logger.Logger
	cron     *cronv3.Cron
	k8s      kubernetes.Interface
	stopCh   chan struct{}
	stopOnce sync.Once
	jobIDs   map[string]cronv3.EntryID
	batches  interfaces.BatchRepository
	breaker  interfaces.CircuitBreakerAdmin
}

func NewCronManager(cfg *config.Config, log logger.Logger, k8s kubernetes.Interface,
	batches interfaces.BatchRepository, breaker interfaces.CircuitBreakerAdmin) *CronManager {
	return &CronManager{
		cfg:     cfg,
		log:     log,
		k8s:     k8s,
		stopCh:  make(chan struct{}),
		jobIDs:  make(map[string]cronv3.EntryID),
		batches: batches,
		breaker: breaker,
	}
}

// Start initializes and starts the cron manager with leader election
// If k8s is nil, it will start in local mode without leader election
func (cm *CronManager) Start(podName, namespace string) error {
	if cm.k8s == nil || os.Getenv("LOCAL_DEV") == "true" {
		cm.log.Info("Starting cron manager in local mode")
		cm.StartCron()
		return nil
	}

	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      leaseName,
			Namespace: namespace,
		},
		Client: cm.k8s.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: podName,
		},
	}

	errCh := make(chan error, 1)

	go func() {
		le, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
			Lock:            lock,
			ReleaseOnCancel: true,
			LeaseDuration:   LeaseDuration,
			RenewDeadline:   RenewDeadline,
			RetryPeriod:     RetryPeriod,
			Callbacks: leaderelection.LeaderCallbacks{
				OnStartedLeading: func(ctx context.Context) {
					cm.StartCron()
				},
				OnStoppedLeading: func() {
					cm.log.Info("Leader lost - stopping crons")
					cm.Stop()
				},
				OnNewLeader: func(identity string) {
					cm.log.Infof("New leader elected: %s", identity)
				},
			},
		})
		if err != nil {
			errCh <- err
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			<-cm.stopCh
			cancel()
		}()
		le.Run(ctx)
	}()

	// Wait briefly to see if leader election fails immediately
	select {
	case err := <-errCh:
		cm.log.Warnf("Leader election failed, falling back to local mode: %v", err)
		cm.StartCron()
	case <-time.After(5 * time.Second):
	}

	return nil
}

// Stop gracefully stops the cron manager. Safe to call more than once.
func (cm *CronManager) Stop() {
	cm.stopOnce.Do(func() {
		if cm.cron != nil {
			cm.log.Info("Stopping cron manager")
			ctx := cm.cron.Stop()
			<-ctx.Done()
		}
		close(cm.stopCh)
	})
}

// registerJobs adds all cron jobs to the scheduler
func (cm *CronManager) registerJobs(c *cronv3.Cron) {
	cronConfig := cm.cfg.CronConfig

	if cronConfig.CronScheduleHeartbeat != "" {
		podName := os.Getenv("POD_NAME")
		if podName == "" {
			podName = "local"
		}
		cm.addJob(c, "heartbeat", cronConfig.CronScheduleHeartbeat, func() {
			cm.log.Infof("Cron heartbeat from pod: %s", podName)
		})
	}

	if cronConfig.CronScheduleStalledBatches != "" {
		cm.addJob(c, "stalled_batches", cronConfig.CronScheduleStalledBatches, func() {
			jobLocks.locks[GroupBatches].Lock()
			defer jobLocks.locks[GroupBatches].Unlock()
			cm.checkStalledBatches()
		})
	}

	if cronConfig.CronScheduleBreakerReport != "" {
		cm.addJob(c, "breaker_report", cronConfig.CronScheduleBreakerReport, cm.reportCircuitBreaker)
	}
}

func (cm *CronManager) addJob(c *cronv3.Cron, name, schedule string, job func()) {
	id, err := c.AddFunc(schedule, func() {
		defer tracing.RecoverAndLogToJaeger(cm.log)
		job()
	})
	if err != nil {
		cm.log.Fatalf("Could not add %s cron job: %v", name, err)
	}
	cm.jobIDs[name] = id
	cm.log.Infof("Registered %s job with schedule: %s", name, schedule)
}

// StartCron initializes and starts the cron scheduler
func (cm *CronManager) StartCron() {
	cm.log.Info("Starting cron manager")
	cronOptions := []cronv3.Option{
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
			cronv3.Recover(cronv3.DefaultLogger),
		),
	}
	c := cronv3.New(cronOptions...)
	cm.registerJobs(c)
	c.Start()
	cm.cron = c
}

func (cm *CronManager) checkStalledBatches() {
	span, ctx := tracing.StartTracerSpan(context.Background(), "CronManager.checkStalledBatches")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	flagged, err := cm.flagStalledBatches(ctx, time.Now())
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to check stalled batches: %v", err)
		return
	}
	if flagged > 0 {
		cm.log.Warnf("Flagged %d stalled batches", flagged)
	}
}

// flagStalledBatches marks processing batches whose last update is older than
// the configured threshold. Their status is left untouched, and a batch written
// by a worker after it was listed is skipped.
func (cm *CronManager) flagStalledBatches(ctx context.Context, now time.Time) (int, error) {
	threshold := time.Duration(cm.cfg.WorkerConfig.StaleBatchAfter) * time.Second

	batches, err := cm.batches.ListProgress(ctx)
	if err != nil {
		return 0, err
	}

	flagged := 0
	for _, progress := range batches {
		if progress.IsComplete || progress.Stalled || progress.Status != enum.BatchProcessing {
			continue
		}
		lastUpdated, err := time.Parse(time.RFC3339, progress.LastUpdated)
		if err != nil || now.Sub(lastUpdated) < threshold {
			continue
		}

		marked, err := cm.batches.MarkStalled(ctx, progress.BatchId, progress.LastUpdated)
		if err != nil {
			cm.log.Warnf("Unable to flag batch %s as stalled: %v", progress.BatchId, err)
			continue
		}
		if !marked {
			cm.log.Debugf("Batch %s moved on while checking for stalls", progress.BatchId)
			continue
		}
		metrics.BatchEvent("stalled")
		cm.log.Warnf("Batch %s stalled at %d/%d, last update %s", progress.BatchId,
			progress.ProcessedCount, progress.TotalEmails, progress.LastUpdated)
		flagged++
	}
	return flagged, nil
}

func (cm *CronManager) reportCircuitBreaker() {
	span, ctx := tracing.StartTracerSpan(context.Background(), "CronManager.reportCircuitBreaker")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	breakerMetrics, err := cm.breaker.Metrics(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Warnf("Unable to read circuit breaker metrics: %v", err)
		return
	}
	metrics.CircuitOpen(breakerMetrics.Status == enum.CircuitOpen)
	cm.log.Infof("Circuit breaker status: %s, consecutive timeouts: %d, total timeouts: %d, dns fallbacks: %d",
		breakerMetrics.Status, breakerMetrics.ConsecutiveSMTPTimeouts,
		breakerMetrics.TotalTimeouts, breakerMetrics.TotalDNSFallbacks)
}
