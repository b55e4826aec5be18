package pumpfun

import "strings"

// Instruction markers emitted by the pump.fun program.
const (
	InstructionBuyLog  = "Program log: Instruction: Buy"
	InstructionSellLog = "Program log: Instruction: Sell"
)

// IsProgramDataLine reports whether line carries an event payload.
func IsProgramDataLine(line string) bool {
	return strings.HasPrefix(line, ProgramDataPrefix)
}

// ContainsLine reports whether any log line contains marker.
func ContainsLine(logs []string, marker string) bool {
	for _, line := range logs {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

// HasBuyInstruction reports whether the logs contain a pump.fun buy.
func HasBuyInstruction(logs []string) bool {
	return ContainsLine(logs, InstructionBuyLog)
}

// DecodeLogs decodes all program data lines of one transaction in order.
// A line that fails to decode is reported in errs and does not affect
// the other lines. Lines that are not program data are skipped.
func DecodeLogs(logs []string) (events []TradeEvent, errs []error) {
	for _, line := range logs {
		if !IsProgramDataLine(line) {
			continue
		}
		decoded, err := DecodeTradeEvents(line)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		events = append(events, decoded...)
	}
	return events, errs
}
