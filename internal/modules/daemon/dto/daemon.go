package dto

import (
	analyticsdomain "focusguard/internal/modules/analytics/domain"
	sessiondto "focusguard/internal/modules/session/dto"
)

type DaemonStatusOutput struct {
	Running    bool
	PID        int
	SocketPath string
	Status     sessiondto.Status
}

type ExportOutput struct {
	Format  string
	Payload string
	Written int
}

type SummaryOutput = analyticsdomain.Summary
