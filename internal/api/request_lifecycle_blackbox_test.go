package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"uberfix/internal/config"
	"uberfix/internal/domain"
	"uberfix/internal/storage"
	"uberfix/internal/workflow"
)

type recordingNotifier struct {
	stages []domain.WorkflowStage
}

func (n *recordingNotifier) StageChanged(_ context.Context, req domain.MaintenanceRequest, _ domain.WorkflowStage) error {
	n.stages = append(n.stages, req.WorkflowStage)
	return nil
}

var _ = Describe("Maintenance request lifecycle over HTTP", func() {
	var (
		store    *storage.SQLiteStore
		notifier *recordingNotifier
		router   http.Handler
	)

	send := func(method, path string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer lifecycle-token")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	BeforeEach(func() {
		var err error
		store, err = storage.NewSQLiteStore(":memory:")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(store.Close)
		Expect(store.Migrate(context.Background())).To(Succeed())

		notifier = &recordingNotifier{}
		mutator := &workflow.Mutator{Store: store, Notifier: notifier, Policy: workflow.PolicyStrict}
		cfg := config.Config{SecurityMode: config.SecurityModeProduction, APIToken: "lifecycle-token", AllowedUploadBytes: 1024}
		router = NewRouter(NewHandler(cfg, store, mutator), RouterDeps{})
	})

	It("walks a request along the happy path, archiving on completed and closed", func() {
		rec := send(http.MethodPost, "/v1/requests", map[string]any{
			"title":          "Broken window latch",
			"customer_name":  "Youssef",
			"customer_phone": "+201112223334",
			"priority":       "high",
			"workflow_stage": "submitted",
		})
		Expect(rec.Code).To(Equal(http.StatusCreated))
		var created requestResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &created)).To(Succeed())
		id := created.Request.ID

		for _, stage := range []string{"acknowledged", "assigned", "scheduled", "in_progress", "completed", "billed", "paid", "closed"} {
			rec = send(http.MethodPost, "/v1/requests/"+id+"/transition", transitionBody{Stage: stage})
			Expect(rec.Code).To(Equal(http.StatusOK), rec.Body.String())

			var res transitionResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &res)).To(Succeed())
			Expect(res.To).To(Equal(domain.WorkflowStage(stage)))
			Expect(res.Status).To(Equal(domain.LegacyStatusFor(res.To)))
			Expect(res.Progress.ProgressPercent).To(Equal(domain.ProgressPercent(stage)))

			if domain.IsArchivingStage(res.To) {
				Expect(res.ArchivedAt).NotTo(BeNil())
			} else {
				Expect(res.ArchivedAt).To(BeNil())
			}
		}

		rec = send(http.MethodGet, "/v1/requests/"+id+"/progress", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		var progress domain.Projection
		Expect(json.Unmarshal(rec.Body.Bytes(), &progress)).To(Succeed())
		Expect(progress.ProgressPercent).To(Equal(100))
		Expect(progress.NextStages).To(BeEmpty())

		Expect(notifier.stages).To(HaveLen(8))
		Expect(notifier.stages[len(notifier.stages)-1]).To(Equal(domain.StageClosed))

		events, err := store.ListStageEvents(context.Background(), id)
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(8))
	})

	It("treats a repeated transition as a no-op", func() {
		rec := send(http.MethodPost, "/v1/requests", map[string]any{
			"title":         "Clogged drain",
			"customer_name": "Nour",
		})
		Expect(rec.Code).To(Equal(http.StatusCreated))
		var created requestResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &created)).To(Succeed())
		id := created.Request.ID

		first := send(http.MethodPost, "/v1/requests/"+id+"/transition", transitionBody{Stage: "submitted"})
		Expect(first.Code).To(Equal(http.StatusOK))
		before, err := store.GetRequest(context.Background(), id)
		Expect(err).NotTo(HaveOccurred())

		second := send(http.MethodPost, "/v1/requests/"+id+"/transition", transitionBody{Stage: "submitted"})
		Expect(second.Code).To(Equal(http.StatusOK))
		var res transitionResponse
		Expect(json.Unmarshal(second.Body.Bytes(), &res)).To(Succeed())
		Expect(res.Changed).To(BeFalse())

		after, err := store.GetRequest(context.Background(), id)
		Expect(err).NotTo(HaveOccurred())
		Expect(after).To(Equal(before))
		Expect(notifier.stages).To(HaveLen(1))
	})

	It("rejects callers without the API token", func() {
		req := httptest.NewRequest(http.MethodGet, "/v1/stages", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})
})
