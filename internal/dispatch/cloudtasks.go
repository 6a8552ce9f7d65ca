package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	cloudtasks "cloud.google.com/go/cloudtasks/apiv2"
	taskspb "cloud.google.com/go/cloudtasks/apiv2/cloudtaskspb"

	"github.com/tengenlabs/tengen/internal/engine"
)

// CloudTasks dispatches engine jobs through a Google Cloud Tasks queue.
// Each job becomes one HTTP task posting the job JSON to the companion
// service, so the queue owns retry with exponential backoff, dead-lettering
// and rate limiting.
//
// Falls back to the local Pool when an enqueue fails.
type CloudTasks struct {
	client    *cloudtasks.Client
	queuePath string
	endpoint  string
	logger    *log.Logger
	fallback  *Pool
}

// CloudTasksConfig identifies the queue and the companion service it
// delivers to.
type CloudTasksConfig struct {
	ProjectID  string
	LocationID string
	QueueID    string

	// Endpoint is the companion service base URL the tasks POST to.
	Endpoint string

	// Fallback handles jobs whose enqueue failed. Optional.
	Fallback *Pool
}

// NewCloudTasks creates a Cloud Tasks-backed dispatcher.
func NewCloudTasks(cfg CloudTasksConfig) (*CloudTasks, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := cloudtasks.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("cloudtasks.NewClient: %w", err)
	}

	queuePath := fmt.Sprintf("projects/%s/locations/%s/queues/%s",
		cfg.ProjectID, cfg.LocationID, cfg.QueueID)

	ct := &CloudTasks{
		client:    client,
		queuePath: queuePath,
		endpoint:  cfg.Endpoint,
		logger:    log.New(log.Writer(), "[CloudTasks] ", log.LstdFlags),
		fallback:  cfg.Fallback,
	}

	ct.logger.Printf("✅ Connected to Cloud Tasks queue: %s", queuePath)
	return ct, nil
}

// DispatchReview enqueues a full-game review job.
func (ct *CloudTasks) DispatchReview(ctx context.Context, job engine.ReviewJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal review job: %w", err)
	}
	ct.enqueueTask(job.TaskID, ct.endpoint+"/review", payload, func() {
		if ct.fallback != nil {
			ct.fallbackLog(job.TaskID)
			_ = ct.fallback.DispatchReview(context.Background(), job)
		}
	})
	return nil
}

// DispatchGenMove enqueues a single-move job.
func (ct *CloudTasks) DispatchGenMove(ctx context.Context, job engine.GenMoveJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal genmove job: %w", err)
	}
	ct.enqueueTask(job.TargetID, ct.endpoint+"/genmove", payload, func() {
		if ct.fallback != nil {
			ct.fallbackLog(job.TargetID)
			_ = ct.fallback.DispatchGenMove(context.Background(), job)
		}
	})
	return nil
}

// enqueueTask creates one Cloud Task posting payload to url. The enqueue
// runs in a goroutine to keep the webhook hot path fast; onFailure runs
// when the queue rejected the task.
func (ct *CloudTasks) enqueueTask(id, url string, payload []byte, onFailure func()) {
	req := &taskspb.CreateTaskRequest{
		Parent: ct.queuePath,
		Task: &taskspb.Task{
			MessageType: &taskspb.Task_HttpRequest{
				HttpRequest: &taskspb.HttpRequest{
					HttpMethod: taskspb.HttpMethod_POST,
					Url:        url,
					Headers: map[string]string{
						"Content-Type":  "application/json",
						"X-Tengen-Task": id,
					},
					Body: payload,
				},
			},
		},
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		task, err := ct.client.CreateTask(ctx, req)
		if err != nil {
			ct.logger.Printf("❌ Cloud Task enqueue failed: %s → %s: %v", id, url, err)
			onFailure()
			return
		}
		ct.logger.Printf("📤 Enqueued Cloud Task: %s → %s (task=%s)", id, url, task.GetName())
	}()
}

func (ct *CloudTasks) fallbackLog(id string) {
	ct.logger.Printf("↩️ Falling back to local delivery for %s", id)
}

// HealthCheck verifies the queue is reachable.
func (ct *CloudTasks) HealthCheck(ctx context.Context) error {
	_, err := ct.client.GetQueue(ctx, &taskspb.GetQueueRequest{Name: ct.queuePath})
	return err
}

// Stats returns basic telemetry about the dispatcher.
func (ct *CloudTasks) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"backend": "cloud-tasks",
		"queue":   ct.queuePath,
	}
	if ct.fallback != nil {
		stats["fallback_depth"] = ct.fallback.QueueDepth()
	}
	return stats
}

// Shutdown closes the client and drains the fallback pool.
func (ct *CloudTasks) Shutdown() {
	if ct.fallback != nil {
		ct.fallback.Shutdown()
	}
	if err := ct.client.Close(); err != nil {
		ct.logger.Printf("⚠️ Cloud Tasks client close error: %v", err)
	}
	ct.logger.Printf("🔌 Cloud Tasks dispatcher closed")
}

var _ Dispatcher = (*CloudTasks)(nil)
