// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package teleinfo

import (
	"fmt"
	"strconv"
)

// AnomalyType represents different types of frame anomalies
type AnomalyType int

const (
	AnomalyMissingField AnomalyType = iota
	AnomalyNonNumeric
	AnomalyOverCurrent
	AnomalyDuplicateLabel
)

// ValidationError represents a frame content anomaly. The frame itself passed
// framing and checksum validation.
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// requiredLabels are present in every historical-mode frame
var requiredLabels = []string{LabelADCO, LabelPTEC}

// numericLabels carry zero-padded decimal values
var numericLabels = []string{
	LabelISOUSC, LabelBASE, LabelHCHC, LabelHCHP,
	LabelIINST, LabelADPS, LabelIMAX, LabelPAPP,
}

// ValidateFrame checks frame content and detects anomalies.
// Returns a slice of validation errors (empty if frame is consistent).
func ValidateFrame(f *Frame) []ValidationError {
	errors := []ValidationError{}
	if f.IsEmpty() {
		return errors
	}

	for _, label := range requiredLabels {
		if _, ok := f.Lookup(label); !ok {
			errors = append(errors, ValidationError{
				Type:    AnomalyMissingField,
				Message: fmt.Sprintf("Missing %s group", label),
				Details: map[string]interface{}{"label": label},
			})
		}
	}

	for _, label := range numericLabels {
		v, ok := f.Lookup(label)
		if !ok {
			continue
		}
		if _, numeric := NormalizeInteger(v); !numeric {
			errors = append(errors, ValidationError{
				Type:    AnomalyNonNumeric,
				Message: fmt.Sprintf("%s=%q is not numeric", label, v),
				Details: map[string]interface{}{"label": label, "value": v},
			})
		}
	}

	if adps, ok := f.Lookup(LabelADPS); ok {
		errors = append(errors, ValidationError{
			Type:    AnomalyOverCurrent,
			Message: fmt.Sprintf("Subscribed power overrun (ADPS=%s A)", adps),
			Details: map[string]interface{}{"adps": adps},
		})
	} else {
		iinst, err1 := strconv.Atoi(f.GetValue(LabelIINST, "", true))
		isousc, err2 := strconv.Atoi(f.GetValue(LabelISOUSC, "", true))
		if err1 == nil && err2 == nil && isousc > 0 && iinst > isousc {
			errors = append(errors, ValidationError{
				Type:    AnomalyOverCurrent,
				Message: fmt.Sprintf("IINST=%d A exceeds ISOUSC=%d A", iinst, isousc),
				Details: map[string]interface{}{"iinst": iinst, "isousc": isousc},
			})
		}
	}

	seen := make(map[string]bool, f.Len())
	var c Cursor
	for {
		label, _, ok := f.Next(&c)
		if !ok {
			break
		}
		if seen[label] {
			errors = append(errors, ValidationError{
				Type:    AnomalyDuplicateLabel,
				Message: fmt.Sprintf("Label %s appears more than once", label),
				Details: map[string]interface{}{"label": label},
			})
		}
		seen[label] = true
	}

	return errors
}
