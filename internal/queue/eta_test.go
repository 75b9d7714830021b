package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"hqms/queue-service/internal/models"
	"hqms/queue-service/internal/store"
)

func completeAfter(t *testing.T, f *fixture, counterID string, serviceTime time.Duration) {
	t.Helper()
	served, err := f.engine.DispatchNext(context.Background(), counterID, "cardiology")
	if err != nil {
		t.Fatalf("DispatchNext: %v", err)
	}
	f.clock.Advance(serviceTime)
	if err := f.engine.CompleteToken(context.Background(), served.TokenID); err != nil {
		t.Fatalf("CompleteToken: %v", err)
	}
}

func TestRecordServiceTimeRollingAverage(t *testing.T) {
	f := newFixture(t)
	f.admit(t, normalInput("0811"))
	f.admit(t, normalInput("0812"))

	// The first real sample replaces the seeded default because the seed
	// carries zero weight.
	completeAfter(t, f, "counter-1", 6*time.Minute)
	metric, err := f.store.GetMetric(context.Background(), "cardiology")
	if err != nil {
		t.Fatal(err)
	}
	if metric.AvgServiceTimeMinutes != 6 {
		t.Errorf("avg after first sample = %v, want 6", metric.AvgServiceTimeMinutes)
	}
	if metric.TotalServed != 1 {
		t.Errorf("total served = %d, want 1", metric.TotalServed)
	}

	completeAfter(t, f, "counter-1", 10*time.Minute)
	metric, err = f.store.GetMetric(context.Background(), "cardiology")
	if err != nil {
		t.Fatal(err)
	}
	if metric.AvgServiceTimeMinutes != 8 {
		t.Errorf("avg after second sample = %v, want 8", metric.AvgServiceTimeMinutes)
	}
	if metric.TotalServed != 2 {
		t.Errorf("total served = %d, want 2", metric.TotalServed)
	}
}

func TestRecordServiceTimeTruncatesToMinutes(t *testing.T) {
	f := newFixture(t)
	f.admit(t, normalInput("0811"))
	completeAfter(t, f, "counter-1", 5*time.Minute+59*time.Second)

	metric, err := f.store.GetMetric(context.Background(), "cardiology")
	if err != nil {
		t.Fatal(err)
	}
	if metric.AvgServiceTimeMinutes != 5 {
		t.Errorf("avg = %v, want 5 (partial minutes truncate)", metric.AvgServiceTimeMinutes)
	}
}

func TestSkipDoesNotTouchMetrics(t *testing.T) {
	f := newFixture(t)
	f.admit(t, normalInput("0811"))
	served, err := f.engine.DispatchNext(context.Background(), "counter-1", "cardiology")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.engine.SkipToken(context.Background(), served.TokenID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.GetMetric(context.Background(), "cardiology"); !errors.Is(err, store.ErrMetricNotFound) {
		t.Errorf("metric err = %v, want ErrMetricNotFound (skips carry no sample)", err)
	}
}

func seedMetricRow(t *testing.T, f *fixture, avg float64, total int64) {
	t.Helper()
	_, err := f.store.PutMetric(context.Background(), models.ServiceMetric{
		ServiceTypeID:         "cardiology",
		AvgServiceTimeMinutes: avg,
		TotalServed:           total,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestEstimateETA(t *testing.T) {
	f := newFixture(t)
	seedMetricRow(t, f, 6, 10)

	f.admit(t, normalInput("0811"))
	f.admit(t, normalInput("0812"))
	f.admit(t, normalInput("0813"))
	mine := f.admit(t, normalInput("0814"))

	// Three ahead, average six minutes, dr-amin closed leaves two open
	// counters: 3 * 6 / 2 = 9.
	doctor, _ := f.store.GetCounter(context.Background(), "dr-amin")
	doctor.OperStatus = models.CounterClosed
	if _, err := f.store.UpdateCounter(context.Background(), doctor); err != nil {
		t.Fatal(err)
	}

	eta, err := f.engine.EstimateETA(context.Background(), mine.TokenID)
	if err != nil {
		t.Fatal(err)
	}
	if eta != 9 {
		t.Errorf("eta = %d, want 9", eta)
	}
}

func TestEstimateETAServingIsZero(t *testing.T) {
	f := newFixture(t)
	f.admit(t, normalInput("0811"))
	served, err := f.engine.DispatchNext(context.Background(), "counter-1", "cardiology")
	if err != nil {
		t.Fatal(err)
	}
	eta, err := f.engine.EstimateETA(context.Background(), served.TokenID)
	if err != nil {
		t.Fatal(err)
	}
	if eta != 0 {
		t.Errorf("eta = %d, want 0 while serving", eta)
	}
}

func TestEstimateETATerminalIsZero(t *testing.T) {
	f := newFixture(t)
	urgent := admitUrgent(t, f, "0811")
	if err := f.engine.RejectEmergency(context.Background(), urgent.TokenID); err != nil {
		t.Fatal(err)
	}

	eta, err := f.engine.EstimateETA(context.Background(), urgent.TokenID)
	if err != nil {
		t.Fatal(err)
	}
	if eta != 0 {
		t.Errorf("eta = %d, want 0 for a cancelled token", eta)
	}
}

func TestEstimateETANoOpenCounters(t *testing.T) {
	f := newFixture(t)
	token := f.admit(t, normalInput("0811"))
	for _, id := range []string{"counter-1", "counter-2", "dr-amin"} {
		counter, _ := f.store.GetCounter(context.Background(), id)
		counter.OperStatus = models.CounterClosed
		if _, err := f.store.UpdateCounter(context.Background(), counter); err != nil {
			t.Fatal(err)
		}
	}

	eta, err := f.engine.EstimateETA(context.Background(), token.TokenID)
	if err != nil {
		t.Fatal(err)
	}
	if eta != -1 {
		t.Errorf("eta = %d, want -1 with no open counters", eta)
	}
}

func TestEstimateETAFrontOfQueue(t *testing.T) {
	f := newFixture(t)
	token := f.admit(t, normalInput("0811"))
	eta, err := f.engine.EstimateETA(context.Background(), token.TokenID)
	if err != nil {
		t.Fatal(err)
	}
	if eta != 0 {
		t.Errorf("eta = %d, want 0 with nobody ahead", eta)
	}
}

func TestEstimateETAUsesDefaultWithoutSamples(t *testing.T) {
	f := newFixture(t)
	f.admit(t, normalInput("0811"))
	f.admit(t, normalInput("0812"))
	mine := f.admit(t, normalInput("0813"))

	// No metric row yet, so the department default of 10 applies:
	// 2 * 10 / 3 open counters rounds to 7.
	eta, err := f.engine.EstimateETA(context.Background(), mine.TokenID)
	if err != nil {
		t.Fatal(err)
	}
	if eta != 7 {
		t.Errorf("eta = %d, want 7", eta)
	}
}

func TestPatientHistoryNewestFirst(t *testing.T) {
	f := newFixture(t)
	first := f.admit(t, normalInput("0811"))
	second := f.admit(t, normalInput("0811"))

	history, err := f.engine.PatientHistory(context.Background(), "0811")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].TokenID != second.TokenID || history[1].TokenID != first.TokenID {
		t.Error("history not newest first")
	}
}

func TestPatientHistoryUnknownPhone(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.PatientHistory(context.Background(), "0000")
	if !errors.Is(err, store.ErrPatientNotFound) {
		t.Errorf("err = %v, want ErrPatientNotFound", err)
	}
}

func TestDashboardSummary(t *testing.T) {
	f := newFixture(t)
	f.admit(t, normalInput("0811"))
	f.admit(t, normalInput("0812"))
	urgentInput := normalInput("0813")
	urgentInput.Urgent = true
	f.admit(t, urgentInput)
	if _, err := f.engine.DispatchNext(context.Background(), "counter-1", "cardiology"); err != nil {
		t.Fatal(err)
	}

	summaries, err := f.engine.DashboardSummary(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 2 {
		t.Fatalf("summaries = %d, want 2", len(summaries))
	}

	var cardiology DepartmentSummary
	for _, summary := range summaries {
		if summary.ServiceTypeID == "cardiology" {
			cardiology = summary
		}
	}
	if cardiology.Waiting != 1 || cardiology.Serving != 1 {
		t.Errorf("cardiology waiting=%d serving=%d, want 1/1", cardiology.Waiting, cardiology.Serving)
	}
	if cardiology.PendingApproval != 1 {
		t.Errorf("pending approval = %d, want 1", cardiology.PendingApproval)
	}
	if cardiology.ApprovedUrgent != 0 {
		t.Errorf("approved urgent = %d, want 0 before approval", cardiology.ApprovedUrgent)
	}
	if cardiology.OpenCounters != 3 {
		t.Errorf("open counters = %d, want 3", cardiology.OpenCounters)
	}
	if cardiology.AvgMinutes != 10 {
		t.Errorf("avg = %v, want department default 10", cardiology.AvgMinutes)
	}
}

func TestDoctorLoads(t *testing.T) {
	f := newFixture(t)
	input := normalInput("0811")
	input.DoctorID = "dr-amin"
	f.admit(t, input)

	loads, err := f.engine.DoctorLoads(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(loads) != 1 {
		t.Fatalf("doctor loads = %d, want 1", len(loads))
	}
	if loads[0].CounterID != "dr-amin" || loads[0].QueuedTokens != 1 {
		t.Errorf("load = %+v, want dr-amin with 1 queued", loads[0])
	}
}

func TestServiceStatsCountsToday(t *testing.T) {
	f := newFixture(t)
	f.admit(t, normalInput("0811"))
	completeAfter(t, f, "counter-1", 4*time.Minute)

	stats, err := f.engine.ServiceStatsFor(context.Background(), "cardiology")
	if err != nil {
		t.Fatal(err)
	}
	if stats.CompletedToday != 1 {
		t.Errorf("completed today = %d, want 1", stats.CompletedToday)
	}
	if stats.TotalServed != 1 {
		t.Errorf("total served = %d, want 1", stats.TotalServed)
	}
	if stats.AvgServiceTimeMinutes != 4 {
		t.Errorf("avg = %v, want 4", stats.AvgServiceTimeMinutes)
	}
}
