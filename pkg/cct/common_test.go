package cct

import (
	"bufio"
	"encoding/json"
	"io"
	"testing"

	"go.uber.org/mock/gomock"
	"probecloud.xyz/cct-backend/pkg/cct/mocks"
	"probecloud.xyz/cct-backend/pkg/db"
)

func GetMockCCTWithMemorySqliteDialector(t *testing.T, useMockIEvaluator bool) (
	*gomock.Controller,
	*CCT,
	*mocks.MockIEvaluator,
) {
	ctrl := gomock.NewController(t)

	mockIEvaluator := mocks.NewMockIEvaluator(ctrl)
	dialector := db.UseMemorySqliteDialector()
	dbInstance := db.GetInstance(dialector) // ensure migrations
	cctInstance := (&CCT{Db: *dbInstance})

	evaluatorService := cctInstance.GetIEvaluator()
	if useMockIEvaluator {
		evaluatorService = mockIEvaluator
	}

	cctInstance.WithServices(ServiceOpts{
		Identity:  cctInstance.GetIIdentity(),
		Registry:  cctInstance.GetIRegistry(),
		Telemetry: cctInstance.GetITelemetry(),
		Evaluator: evaluatorService,
		Notifier:  cctInstance.GetINotifier(),
		Sync:      cctInstance.GetISync(),
		Senders:   DefaultSenders("", ""),
	})

	return ctrl, cctInstance, mockIEvaluator
}

func ParseLogs(r io.Reader) []any {
	scanner := bufio.NewScanner(r)
	var logs []any

	for scanner.Scan() {
		line := scanner.Text()
		var j any
		if err := json.Unmarshal([]byte(line), &j); err == nil {
			logs = append(logs, j)
		}
	}
	return logs
}
