package alert

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/models"
)

func TestFormatStuckMessage(t *testing.T) {
	record := &models.QueueRecord{
		ID:         "0190c3f1-aaaa-bbbb-cccc-000000000001",
		Kind:       models.SubmissionKindPhoto,
		Attempts:   5,
		LastStatus: 502,
		LastError:  "Bad Gateway",
		CreatedAt:  time.Date(2026, 2, 3, 10, 30, 0, 0, time.UTC),
	}

	text := formatStuckMessage(record)
	for _, want := range []string{
		"Submission stuck",
		record.ID,
		"Attempts: 5",
		"Last status: 502",
		"Bad Gateway",
		"2026-02-03 10:30:00",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("message missing %q:\n%s", want, text)
		}
	}
}

func TestNilAlerterIsSafe(t *testing.T) {
	var a *TelegramAlerter
	a.DeliveryStuck(context.Background(), &models.QueueRecord{ID: "x"})
}
