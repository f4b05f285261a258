package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewQueue(client, nil), mr
}

func TestEnqueueDequeue(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	reportID := uuid.New()

	id, err := q.EnqueueReport(ctx, ReportPayload{ReportID: reportID})
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := q.Pending(ctx); n != 1 {
		t.Errorf("pending = %d", n)
	}

	job, err := q.Dequeue(ctx, time.Second)
	if err != nil || job == nil {
		t.Fatalf("dequeue: %v %v", job, err)
	}
	if job.ID != id || job.Type != JobTypeMeritReport || job.Attempt != 0 {
		t.Errorf("job = %+v", job)
	}
	var payload ReportPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil || payload.ReportID != reportID {
		t.Errorf("payload = %s", job.Payload)
	}
}

func TestDequeueEmptyTimesOut(t *testing.T) {
	q, _ := newTestQueue(t)
	job, err := q.Dequeue(context.Background(), 100*time.Millisecond)
	if err != nil || job != nil {
		t.Errorf("job = %v err = %v", job, err)
	}
}

func TestDequeueSkipsGarbage(t *testing.T) {
	q, mr := newTestQueue(t)
	if _, err := mr.Push(QueueReports, "not json"); err != nil {
		t.Fatal(err)
	}
	job, err := q.Dequeue(context.Background(), time.Second)
	if err != nil || job != nil {
		t.Errorf("job = %v err = %v", job, err)
	}
}

func TestRetryThenDeadLetter(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	if _, err := q.EnqueueReport(ctx, ReportPayload{ReportID: uuid.New()}); err != nil {
		t.Fatal(err)
	}
	cause := errors.New("s3 unavailable")

	for attempt := 1; attempt <= MaxRetries+1; attempt++ {
		job, err := q.Dequeue(ctx, time.Second)
		if err != nil || job == nil {
			t.Fatalf("attempt %d: dequeue %v %v", attempt, job, err)
		}
		dead, err := q.Retry(ctx, job, cause)
		if err != nil {
			t.Fatal(err)
		}
		if want := attempt == MaxRetries+1; dead != want {
			t.Fatalf("attempt %d: deadLettered = %v", attempt, dead)
		}
	}

	if n, _ := q.Pending(ctx); n != 0 {
		t.Errorf("pending = %d", n)
	}
	dlq, err := q.DeadLetters(ctx)
	if err != nil || len(dlq) != 1 {
		t.Fatalf("dlq = %v %v", dlq, err)
	}
	if dlq[0].Attempt != MaxRetries+1 || dlq[0].LastError != "s3 unavailable" {
		t.Errorf("dead job = %+v", dlq[0])
	}
	if st, err := q.Stats(ctx); err != nil || st.Pending != 0 || st.DeadLettered != 1 {
		t.Errorf("stats = %+v %v", st, err)
	}
}

func TestRequeueGoesToFrontWithoutAttempt(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	first, _ := q.EnqueueReport(ctx, ReportPayload{ReportID: uuid.New()})
	if _, err := q.EnqueueReport(ctx, ReportPayload{ReportID: uuid.New()}); err != nil {
		t.Fatal(err)
	}

	job, err := q.Dequeue(ctx, time.Second)
	if err != nil || job == nil || job.ID != first {
		t.Fatalf("dequeue = %+v %v", job, err)
	}
	if err := q.Requeue(ctx, job); err != nil {
		t.Fatal(err)
	}
	again, err := q.Dequeue(ctx, time.Second)
	if err != nil || again == nil || again.ID != first || again.Attempt != 0 {
		t.Errorf("requeued job = %+v %v", again, err)
	}
}
