// Package engine implements the alert state machine and the idempotent
// threshold-crossing detector.
package engine

import (
	"tradeedge/internal/models"
)

// Transition computes the status change for one price observation against
// one alert. It returns the resulting status and the thresholds newly
// crossed by this observation, in ladder order; thresholds already present
// in the alert's CrossedThresholds never fire again.
//
// Status is monotonic on the upward ladder: a dip never regresses it. The
// single exception is the terminal stop-out when the price reaches the
// support level.
func Transition(alert *models.Alert, price float64) (models.AlertStatus, []models.ThresholdType) {
	if alert.Status.IsTerminal() {
		return alert.Status, nil
	}

	// Stop-out takes priority over any upward evaluation for this update.
	if alert.SupportLevel != nil && price <= *alert.SupportLevel {
		if alert.CrossedThresholds.Has(models.ThresholdStoppedOut) {
			return models.StatusStoppedOut, nil
		}
		return models.StatusStoppedOut, []models.ThresholdType{models.ThresholdStoppedOut}
	}

	prevRank := alert.Status.Rank()
	newRank := prevRank
	for rank := prevRank + 1; rank <= maxRank; rank++ {
		if conditionMet(alert, price, rank) {
			newRank = rank
		}
	}

	if newRank == prevRank {
		return alert.Status, nil
	}

	var crossed []models.ThresholdType
	for rank := prevRank + 1; rank <= newRank; rank++ {
		threshold, ok := models.ThresholdForRank(rank)
		if !ok || alert.CrossedThresholds.Has(threshold) {
			continue
		}
		crossed = append(crossed, threshold)
	}

	status, _ := models.StatusForRank(newRank)
	return status, crossed
}

// maxRank is the top of the upward ladder (target3_hit).
const maxRank = 4

// conditionMet reports whether the price satisfies the ladder rank's
// threshold condition.
func conditionMet(alert *models.Alert, price float64, rank int) bool {
	switch rank {
	case 1:
		return price >= alert.BuyZoneMin
	case 2:
		return price >= alert.Target1
	case 3:
		return price >= alert.Target2
	case 4:
		return price >= alert.Target3
	}
	return false
}
