package chart

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var printer = message.NewPrinter(language.French)

// FormatNumber groups thousands the French way, with at most three decimals.
func FormatNumber(v float64) string {
	return printer.Sprint(number.Decimal(v, number.MaxFractionDigits(3)))
}

func FormatDate(t time.Time) string {
	return t.Format("02/01/2006")
}
