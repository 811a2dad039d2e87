package orders

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/huyanhvn/threadcraft-backend/api/responses"
	"github.com/huyanhvn/threadcraft-backend/internal/notifications"
	"github.com/huyanhvn/threadcraft-backend/pkg/enums"
	pkgerrors "github.com/huyanhvn/threadcraft-backend/pkg/errors"
	"github.com/huyanhvn/threadcraft-backend/pkg/logger"
)

type notificationView struct {
	ID        uuid.UUID              `json:"id"`
	Kind      enums.NotificationKind `json:"kind"`
	Recipient string                 `json:"recipient"`
	Subject   string                 `json:"subject"`
	Delivered bool                   `json:"delivered"`
	Attempts  int                    `json:"attempts"`
	LastError *string                `json:"last_error,omitempty"`
	SentAt    *time.Time             `json:"sent_at,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// NotificationHistory lists the emails sent for an order, newest first.
// Staff only.
func NotificationHistory(repo notifications.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notifications repository unavailable"))
			return
		}

		orderNumber, err := parseOrderNumber(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := repo.ListByOrderNumber(r.Context(), orderNumber)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications"))
			return
		}

		views := make([]notificationView, 0, len(rows))
		for _, row := range rows {
			views = append(views, notificationView{
				ID:        row.ID,
				Kind:      row.Kind,
				Recipient: row.Recipient,
				Subject:   row.Subject,
				Delivered: row.Delivered,
				Attempts:  row.Attempts,
				LastError: row.LastError,
				SentAt:    row.SentAt,
				CreatedAt: row.CreatedAt,
			})
		}
		responses.WriteSuccess(w, views)
	}
}
