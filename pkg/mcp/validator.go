// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mcp

import "fmt"

// AnomalyType represents different types of frame anomalies
type AnomalyType int

const (
	AnomalyUnknownType AnomalyType = iota
	AnomalyZeroSource
	AnomalyInvalidFlag
	AnomalyZeroOrigin
	AnomalyCRCError
	AnomalyDecodeError
)

// ValidationError represents a frame validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateFrame checks a CRC-valid frame for semantic anomalies.
// Returns a slice of validation errors (empty if the frame is sane)
func ValidateFrame(f *Frame) []ValidationError {
	errors := []ValidationError{}

	if f.Source.IsZero() {
		errors = append(errors, ValidationError{
			Type:    AnomalyZeroSource,
			Message: "Frame sent from reserved zero address",
			Details: map[string]interface{}{"type": f.Type},
		})
	}

	switch f.Type {
	case MsgEdgeProbe:
		errors = append(errors, validateFlag(f)...)
	case MsgTopologyAdvertise:
		if f.PayloadAddress(0).IsZero() {
			errors = append(errors, zeroOrigin(f, 0))
		}
	case MsgAnimationPulse:
		// phase byte is free-form
	case MsgFireAlarm, MsgReset:
		errors = append(errors, validateFlag(f)...)
	case MsgExitDeclare:
		if f.PayloadAddress(PayloadOrigin).IsZero() {
			errors = append(errors, zeroOrigin(f, PayloadOrigin))
		}
	default:
		errors = append(errors, ValidationError{
			Type:    AnomalyUnknownType,
			Message: fmt.Sprintf("Unknown message type 0x%02X", uint8(f.Type)),
			Details: map[string]interface{}{"type": uint8(f.Type)},
		})
	}

	return errors
}

func validateFlag(f *Frame) []ValidationError {
	if flag := f.Flag(); flag != FlagPropagate && flag != FlagAck {
		return []ValidationError{{
			Type:    AnomalyInvalidFlag,
			Message: fmt.Sprintf("Invalid flag=0x%02X for %s", flag, FormatMessageType(f.Type)),
			Details: map[string]interface{}{"flag": flag},
		}}
	}
	return nil
}

func zeroOrigin(f *Frame, offset int) ValidationError {
	return ValidationError{
		Type:    AnomalyZeroOrigin,
		Message: fmt.Sprintf("%s carries reserved zero address", FormatMessageType(f.Type)),
		Details: map[string]interface{}{"offset": offset},
	}
}
