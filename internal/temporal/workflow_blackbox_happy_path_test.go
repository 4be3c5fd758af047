package temporal

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/converter"
	"go.temporal.io/sdk/testsuite"

	"uberfix/internal/domain"
)

type activityTrace struct {
	mu sync.Mutex

	startedOrder   []string
	completedOrder []string

	loadIn    *LoadRequestInput
	renderOut *RenderMessageOutput
	sendIn    *SendNotificationInput
	recordIn  *RecordNotificationInput
}

func (t *activityTrace) recordStarted(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startedOrder = append(t.startedOrder, name)
}

func (t *activityTrace) recordCompleted(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completedOrder = append(t.completedOrder, name)
}

var _ = Describe("StageNotificationWorkflow blackbox happy path", func() {
	It("loads the request, renders the stage message, sends it and records the outcome", func() {
		var suite testsuite.WorkflowTestSuite
		env := suite.NewTestWorkflowEnvironment()

		store := newFakeStore(testRequest("req-happy-1", domain.StageCompleted))
		sender := &fakeSender{}
		metrics := &fakeMetrics{}
		acts := &Activities{Store: store, Sender: sender, Metrics: metrics}

		trace := &activityTrace{}

		env.SetOnActivityStartedListener(func(info *activity.Info, _ context.Context, args converter.EncodedValues) {
			trace.recordStarted(info.ActivityType.Name)

			switch info.ActivityType.Name {
			case "LoadRequestActivity":
				var in LoadRequestInput
				_ = args.Get(&in)
				trace.mu.Lock()
				trace.loadIn = &in
				trace.mu.Unlock()
			case "SendNotificationActivity":
				var in SendNotificationInput
				_ = args.Get(&in)
				trace.mu.Lock()
				trace.sendIn = &in
				trace.mu.Unlock()
			case "RecordNotificationActivity":
				var in RecordNotificationInput
				_ = args.Get(&in)
				trace.mu.Lock()
				trace.recordIn = &in
				trace.mu.Unlock()
			}
		})

		env.SetOnActivityCompletedListener(func(info *activity.Info, result converter.EncodedValue, _ error) {
			trace.recordCompleted(info.ActivityType.Name)

			if info.ActivityType.Name == "RenderMessageActivity" {
				var out RenderMessageOutput
				_ = result.Get(&out)
				trace.mu.Lock()
				trace.renderOut = &out
				trace.mu.Unlock()
			}
		})

		env.RegisterWorkflow(StageNotificationWorkflow)
		env.RegisterActivity(acts)

		By("starting the workflow for a request that just completed")
		env.ExecuteWorkflow(StageNotificationWorkflow, WorkflowInput{
			RequestID: "req-happy-1",
			Stage:     domain.StageCompleted,
			FromStage: domain.StageInProgress,
			Channel:   domain.ChannelWhatsApp,
		})

		By("validating the workflow completes successfully")
		Expect(env.IsWorkflowCompleted()).To(BeTrue())
		Expect(env.GetWorkflowError()).ToNot(HaveOccurred())

		var result WorkflowResult
		Expect(env.GetWorkflowResult(&result)).To(Succeed())
		Expect(result.RequestID).To(Equal("req-happy-1"))
		Expect(result.Stage).To(Equal(domain.StageCompleted))
		Expect(result.Status).To(Equal(domain.NotificationSent))

		By("validating activity order and payloads")
		expectedOrder := []string{
			"LoadRequestActivity",
			"RenderMessageActivity",
			"SendNotificationActivity",
			"RecordNotificationActivity",
		}
		Expect(trace.startedOrder).To(Equal(expectedOrder))
		Expect(trace.completedOrder).To(Equal(expectedOrder))

		Expect(trace.loadIn).ToNot(BeNil())
		Expect(trace.loadIn.RequestID).To(Equal("req-happy-1"))

		Expect(trace.renderOut).ToNot(BeNil())
		Expect(trace.renderOut.Skip).To(BeFalse())
		Expect(trace.renderOut.Body).To(ContainSubstring("Completed (67% done)"))

		Expect(trace.sendIn).ToNot(BeNil())
		Expect(trace.sendIn.Channel).To(Equal(domain.ChannelWhatsApp))
		Expect(trace.sendIn.Body).To(Equal(trace.renderOut.Body))

		Expect(trace.recordIn).ToNot(BeNil())
		Expect(trace.recordIn.Notification.Status).To(Equal(domain.NotificationSent))
		Expect(trace.recordIn.Notification.ProviderID).To(Equal("msg-req-happy-1"))

		By("validating persisted side effects")
		Expect(store.recorded()).To(HaveLen(1))
		Expect(sender.sent()).To(HaveLen(1))
		Expect(metrics.outcomes).To(HaveKeyWithValue(domain.NotificationSent, 1))
	})
})
