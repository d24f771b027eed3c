// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mcp

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks frame statistics and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames   uint64
	ValidFrames   uint64
	CRCErrors     uint64
	DecodeErrors  uint64
	Anomalies     uint64
	UnknownTypes  uint64
	InvalidFlags  uint64
	ZeroAddresses uint64
	TxFrames      uint64

	ByType [MsgExitDeclare + 1]uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update updates statistics based on a received frame and its errors
func (s *Statistics) Update(f *Frame, decodeErr error, validationErrors []ValidationError) {
	s.TotalFrames++
	s.LastUpdateTime = time.Now()

	if decodeErr != nil {
		if errors.Is(decodeErr, ErrCRCMismatch) {
			s.CRCErrors++
		} else {
			s.DecodeErrors++
		}
		return
	}

	if f != nil && int(f.Type) < len(s.ByType) {
		s.ByType[f.Type]++
	}

	if len(validationErrors) == 0 {
		s.ValidFrames++
		return
	}

	s.Anomalies++
	for _, err := range validationErrors {
		switch err.Type {
		case AnomalyUnknownType:
			s.UnknownTypes++
		case AnomalyInvalidFlag:
			s.InvalidFlags++
		case AnomalyZeroSource, AnomalyZeroOrigin:
			s.ZeroAddresses++
		}
	}
}

// RecordTx counts a transmitted frame
func (s *Statistics) RecordTx() {
	s.TxFrames++
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.CRCErrors+s.DecodeErrors+s.Anomalies) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var validPercent, crcPercent, anomalyPercent float64
	if s.TotalFrames > 0 {
		validPercent = float64(s.ValidFrames) * 100.0 / float64(s.TotalFrames)
		crcPercent = float64(s.CRCErrors) * 100.0 / float64(s.TotalFrames)
		anomalyPercent = float64(s.Anomalies) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, validPercent)
	if s.TxFrames > 0 {
		result += fmt.Sprintf("Sent Frames:     %8d\n", s.TxFrames)
	}

	if s.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d (%.1f%%)\n", s.CRCErrors, crcPercent)
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d\n", s.DecodeErrors)
	}
	if s.Anomalies > 0 {
		result += fmt.Sprintf("Anomalies:       %8d (%.1f%%)\n", s.Anomalies, anomalyPercent)
		if s.UnknownTypes > 0 {
			result += fmt.Sprintf("  Unknown Type:     %5d\n", s.UnknownTypes)
		}
		if s.InvalidFlags > 0 {
			result += fmt.Sprintf("  Invalid Flag:     %5d\n", s.InvalidFlags)
		}
		if s.ZeroAddresses > 0 {
			result += fmt.Sprintf("  Zero Address:     %5d\n", s.ZeroAddresses)
		}
	}

	for t, n := range s.ByType {
		if n > 0 {
			result += fmt.Sprintf("  %-20s %6d\n", FormatMessageType(MsgType(t)), n)
		}
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
