// Package cli provides the command-line interface for the options analyzer.
package cli

import (
	"fmt"
	"math"
	"strings"
	"time"

	"options-analyzer/pkg/utils"
)

// FormatIndianCurrency formats a number in Indian currency format (lakhs, crores).
func FormatIndianCurrency(amount float64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	// Format with 2 decimal places
	str := fmt.Sprintf("%.2f", amount)
	parts := strings.Split(str, ".")
	intPart := parts[0]
	decPart := parts[1]

	// Apply Indian numbering system
	formatted := formatIndianNumber(intPart)

	result := "₹" + formatted + "." + decPart
	if negative {
		result = "-" + result
	}
	return result
}

// formatIndianNumber formats an integer string in Indian numbering system.
// Indian system: 1,00,00,000 (1 crore) vs Western: 10,000,000
func formatIndianNumber(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	// First group of 3 from right (hundreds)
	result := s[n-3:]
	s = s[:n-3]

	// Then groups of 2 (thousands, lakhs, crores)
	for len(s) > 0 {
		if len(s) >= 2 {
			result = s[len(s)-2:] + "," + result
			s = s[:len(s)-2]
		} else {
			result = s + "," + result
			s = ""
		}
	}

	return result
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatQuantity formats a quantity with Indian numbering.
func FormatQuantity(qty int64) string {
	if qty < 0 {
		return "-" + FormatQuantity(-qty)
	}
	return formatIndianNumber(fmt.Sprintf("%d", qty))
}

// FormatLakhs formats a number in lakhs.
func FormatLakhs(amount float64) string {
	lakhs := amount / 100000
	if lakhs < 0 {
		return fmt.Sprintf("-%.2f L", -lakhs)
	}
	return fmt.Sprintf("%.2f L", lakhs)
}

// FormatCrores formats a number in crores.
func FormatCrores(amount float64) string {
	crores := amount / 10000000
	if crores < 0 {
		return fmt.Sprintf("-%.2f Cr", -crores)
	}
	return fmt.Sprintf("%.2f Cr", crores)
}

// FormatCompact formats a large count in compact form (L/Cr), falling
// back to grouped digits below a lakh.
func FormatCompact(amount float64) string {
	absAmount := math.Abs(amount)

	if absAmount >= 10000000 { // 1 crore
		return FormatCrores(amount)
	} else if absAmount >= 100000 { // 1 lakh
		return FormatLakhs(amount)
	}
	return FormatQuantity(int64(math.Round(amount)))
}

// FormatVolume formats volume in compact form.
func FormatVolume(volume int64) string {
	if volume >= 10000000 { // 1 crore
		return fmt.Sprintf("%.2f Cr", float64(volume)/10000000)
	} else if volume >= 100000 { // 1 lakh
		return fmt.Sprintf("%.2f L", float64(volume)/100000)
	} else if volume >= 1000 {
		return fmt.Sprintf("%.2f K", float64(volume)/1000)
	}
	return fmt.Sprintf("%d", volume)
}

// FormatTime formats a clock time in the market timezone.
func FormatTime(t time.Time) string {
	return t.In(utils.IndiaLocation).Format("15:04:05")
}

// FormatDate formats a date in the market timezone.
func FormatDate(t time.Time) string {
	return t.In(utils.IndiaLocation).Format("02-Jan-2006")
}

// FormatDateTime formats a date and time in the market timezone.
func FormatDateTime(t time.Time) string {
	return t.In(utils.IndiaLocation).Format("02-Jan-2006 15:04:05")
}

// FormatIV formats implied volatility, which NSE already quotes in percent.
func FormatIV(iv float64) string {
	return fmt.Sprintf("%.2f%%", iv)
}

// FormatOI formats open interest.
func FormatOI(oi int64) string {
	return FormatVolume(oi)
}

// FormatBiasScore formats a weighted bias total with sign.
func FormatBiasScore(score float64) string {
	if score > 0 {
		return fmt.Sprintf("+%.1f", score)
	}
	return fmt.Sprintf("%.1f", score)
}

