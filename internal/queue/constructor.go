package queue

import (
	"github.com/maheshrc27/crossflow/internal/metrics"
	"github.com/maheshrc27/crossflow/internal/repository"
	"github.com/maheshrc27/crossflow/internal/service"
)

type Queue struct {
	ps         repository.PostStatusRepository
	pr         repository.PostRepository
	ac         repository.AccountRepository
	publishers map[string]service.Publisher
	m          *metrics.Metrics
}

func NewQueue(
	ps repository.PostStatusRepository,
	pr repository.PostRepository,
	ac repository.AccountRepository,
	publishers map[string]service.Publisher,
	m *metrics.Metrics) *Queue {
	return &Queue{
		ps:         ps,
		pr:         pr,
		ac:         ac,
		publishers: publishers,
		m:          m,
	}
}

const TaskTypeExecuteStatus = "crosspost:execute"

type ExecuteStatusPayload struct {
	StatusID int64 `json:"status_id"`
}
