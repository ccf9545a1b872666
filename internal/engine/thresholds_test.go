package engine

import (
	"testing"

	"tradeedge/internal/models"
)

func ptr(f float64) *float64 { return &f }

// newTestAlert returns the reference alert used across engine tests:
// buy zone 170-175, targets 185/195/210, support 165.
func newTestAlert() *models.Alert {
	return &models.Alert{
		ID:                1,
		Symbol:            "AAPL",
		BuyZoneMin:        170,
		BuyZoneMax:        175,
		SupportLevel:      ptr(165),
		Target1:           185,
		Target2:           195,
		Target3:           210,
		RequiredTier:      models.TierFree,
		Status:            models.StatusPending,
		CrossedThresholds: models.NewThresholdSet(),
	}
}

func TestTransition(t *testing.T) {
	tests := []struct {
		name        string
		status      models.AlertStatus
		crossed     []models.ThresholdType
		price       float64
		wantStatus  models.AlertStatus
		wantCrossed []models.ThresholdType
	}{
		{
			name:        "pending stays pending below zone",
			status:      models.StatusPending,
			price:       168,
			wantStatus:  models.StatusPending,
			wantCrossed: nil,
		},
		{
			name:        "pending enters buy zone",
			status:      models.StatusPending,
			price:       172,
			wantStatus:  models.StatusInBuyZone,
			wantCrossed: []models.ThresholdType{models.ThresholdEnteredBuyZone},
		},
		{
			name:       "pending jumps straight past target1",
			status:     models.StatusPending,
			price:      186,
			wantStatus: models.StatusTarget1Hit,
			wantCrossed: []models.ThresholdType{
				models.ThresholdEnteredBuyZone,
				models.ThresholdTarget1,
			},
		},
		{
			name:       "pending gaps past every target",
			status:     models.StatusPending,
			price:      250,
			wantStatus: models.StatusTarget3Hit,
			wantCrossed: []models.ThresholdType{
				models.ThresholdEnteredBuyZone,
				models.ThresholdTarget1,
				models.ThresholdTarget2,
				models.ThresholdTarget3,
			},
		},
		{
			name:        "dip below zone does not regress status",
			status:      models.StatusTarget1Hit,
			crossed:     []models.ThresholdType{models.ThresholdEnteredBuyZone, models.ThresholdTarget1},
			price:       183,
			wantStatus:  models.StatusTarget1Hit,
			wantCrossed: nil,
		},
		{
			name:        "already crossed threshold does not fire again",
			status:      models.StatusInBuyZone,
			crossed:     []models.ThresholdType{models.ThresholdEnteredBuyZone},
			price:       173,
			wantStatus:  models.StatusInBuyZone,
			wantCrossed: nil,
		},
		{
			name:        "stop out from buy zone",
			status:      models.StatusInBuyZone,
			crossed:     []models.ThresholdType{models.ThresholdEnteredBuyZone},
			price:       163,
			wantStatus:  models.StatusStoppedOut,
			wantCrossed: []models.ThresholdType{models.ThresholdStoppedOut},
		},
		{
			name:        "stop out exactly at support level",
			status:      models.StatusTarget1Hit,
			crossed:     []models.ThresholdType{models.ThresholdEnteredBuyZone, models.ThresholdTarget1},
			price:       165,
			wantStatus:  models.StatusStoppedOut,
			wantCrossed: []models.ThresholdType{models.ThresholdStoppedOut},
		},
		{
			name:        "terminal stopped_out ignores recovery",
			status:      models.StatusStoppedOut,
			crossed:     []models.ThresholdType{models.ThresholdStoppedOut},
			price:       200,
			wantStatus:  models.StatusStoppedOut,
			wantCrossed: nil,
		},
		{
			name:   "terminal target3_hit ignores further prices",
			status: models.StatusTarget3Hit,
			crossed: []models.ThresholdType{
				models.ThresholdEnteredBuyZone,
				models.ThresholdTarget1,
				models.ThresholdTarget2,
				models.ThresholdTarget3,
			},
			price:       260,
			wantStatus:  models.StatusTarget3Hit,
			wantCrossed: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alert := newTestAlert()
			alert.Status = tt.status
			for _, th := range tt.crossed {
				alert.CrossedThresholds.Add(th)
			}

			status, crossed := Transition(alert, tt.price)
			if status != tt.wantStatus {
				t.Errorf("status = %s, want %s", status, tt.wantStatus)
			}
			if len(crossed) != len(tt.wantCrossed) {
				t.Fatalf("crossed = %v, want %v", crossed, tt.wantCrossed)
			}
			for i, th := range tt.wantCrossed {
				if crossed[i] != th {
					t.Errorf("crossed[%d] = %s, want %s", i, crossed[i], th)
				}
			}
		})
	}
}

func TestTransitionNilSupportNeverStopsOut(t *testing.T) {
	alert := newTestAlert()
	alert.SupportLevel = nil

	status, crossed := Transition(alert, 1)
	if status != models.StatusPending || crossed != nil {
		t.Errorf("alert without support level must not stop out, got %s %v", status, crossed)
	}
}
