// Package notify renders human-readable messages for crossing events.
package notify

import (
	"fmt"

	"tradeedge/internal/models"
	"tradeedge/pkg/utils"
)

// Message builds the human message carried in a delivered notification.
func Message(event models.CrossingEvent, alert *models.Alert) string {
	price := utils.FormatPrice(event.Price)

	switch event.Threshold {
	case models.ThresholdEnteredBuyZone:
		return fmt.Sprintf("%s entered the buy zone (%s to %s) at %s",
			alert.Symbol, utils.FormatPrice(alert.BuyZoneMin), utils.FormatPrice(alert.BuyZoneMax), price)
	case models.ThresholdTarget1:
		return fmt.Sprintf("%s hit Target 1 (%s) at %s (%s from zone top)",
			alert.Symbol, utils.FormatPrice(alert.Target1), price,
			utils.FormatPercent(utils.PercentFrom(alert.BuyZoneMax, event.Price)))
	case models.ThresholdTarget2:
		return fmt.Sprintf("%s hit Target 2 (%s) at %s (%s from zone top)",
			alert.Symbol, utils.FormatPrice(alert.Target2), price,
			utils.FormatPercent(utils.PercentFrom(alert.BuyZoneMax, event.Price)))
	case models.ThresholdTarget3:
		return fmt.Sprintf("%s hit Target 3 (%s) at %s, alert closed",
			alert.Symbol, utils.FormatPrice(alert.Target3), price)
	case models.ThresholdStoppedOut:
		return fmt.Sprintf("%s stopped out at %s", alert.Symbol, price)
	}
	return fmt.Sprintf("%s crossed %s at %s", alert.Symbol, event.Threshold, price)
}
