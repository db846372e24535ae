package kafka

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"

	"numflow/internal/job"
)

func TestPushPublishesJSONKeyedByJob(t *testing.T) {
	sc := mocks.NewTestConfig()
	sc.Producer.Return.Errors = true
	sc.Producer.Return.Successes = false
	p := mocks.NewAsyncProducer(t, sc)

	var got job.Result
	p.ExpectInputWithCheckerFunctionAndSucceed(func(v []byte) error {
		return json.Unmarshal(v, &got)
	})

	d := &driver{}
	d.attach(Config{Brokers: []string{"mock:9092"}, Topic: "numflow.jobs"}, p)

	require.NoError(t, d.Push(job.Result{JobID: "j-1", Operation: job.OpTransform, Status: job.StatusSuccess, RowCount: 7}))
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	require.Equal(t, "j-1", got.JobID)
	require.Equal(t, 7, got.RowCount)
}

func TestPublishFailureIsDrained(t *testing.T) {
	sc := mocks.NewTestConfig()
	sc.Producer.Return.Errors = true
	sc.Producer.Return.Successes = false
	p := mocks.NewAsyncProducer(t, sc)
	p.ExpectInputAndFail(errors.New("broker down"))

	d := &driver{}
	d.attach(Config{Brokers: []string{"mock:9092"}, Topic: "numflow.jobs"}, p)
	require.NoError(t, d.Push(job.Result{JobID: "j-2"}))
	require.NoError(t, d.Close())
}

func TestConfigureRejectsMissingBrokers(t *testing.T) {
	d := &driver{}
	require.Error(t, d.Configure(Config{Topic: "t"}))
	require.Error(t, d.Configure("nope"))
}
