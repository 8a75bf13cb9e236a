package checkout

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/lokrise/checkout/api/responses"
	"github.com/lokrise/checkout/api/validators"
	"github.com/lokrise/checkout/internal/barter"
	checkoutsvc "github.com/lokrise/checkout/internal/checkout"
	pkgerrors "github.com/lokrise/checkout/pkg/errors"
	"github.com/lokrise/checkout/pkg/logger"
	"github.com/lokrise/checkout/pkg/marketplace"
)

const (
	photoField       = "photos"
	multipartMemory  = 8 << 20
	multipartOverrun = 1 << 20
)

// PhotoLimits bounds the multipart barter submission before it reaches the service.
type PhotoLimits struct {
	MaxPhotos     int
	MaxPhotoBytes int64
}

type topUpRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// barterStep is the shape shared by the body-less wizard steps.
type barterStep func(checkoutsvc.Service, *http.Request) (*barter.Draft, error)

func barterHandler(svc checkoutsvc.Service, logg *logger.Logger, step barterStep) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}
		draft, err := step(svc, r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, draft)
	}
}

func BarterFetch(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return barterHandler(svc, logg, func(svc checkoutsvc.Service, r *http.Request) (*barter.Draft, error) {
		userID, sessionID, err := sessionScope(r)
		if err != nil {
			return nil, err
		}
		return svc.Barter(r.Context(), userID, sessionID)
	})
}

func BarterStart(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return barterHandler(svc, logg, func(svc checkoutsvc.Service, r *http.Request) (*barter.Draft, error) {
		userID, sessionID, err := sessionScope(r)
		if err != nil {
			return nil, err
		}
		return svc.StartBarter(r.Context(), userID, sessionID)
	})
}

func BarterSetItem(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return barterHandler(svc, logg, func(svc checkoutsvc.Service, r *http.Request) (*barter.Draft, error) {
		userID, sessionID, err := sessionScope(r)
		if err != nil {
			return nil, err
		}
		var item barter.Item
		if err := validators.DecodeJSONBody(r, &item); err != nil {
			return nil, err
		}
		return svc.SetBarterItem(r.Context(), userID, sessionID, item)
	})
}

func BarterReview(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return barterHandler(svc, logg, func(svc checkoutsvc.Service, r *http.Request) (*barter.Draft, error) {
		userID, sessionID, err := sessionScope(r)
		if err != nil {
			return nil, err
		}
		return svc.ReviewBarter(r.Context(), userID, sessionID)
	})
}

func BarterEdit(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return barterHandler(svc, logg, func(svc checkoutsvc.Service, r *http.Request) (*barter.Draft, error) {
		userID, sessionID, err := sessionScope(r)
		if err != nil {
			return nil, err
		}
		return svc.EditBarter(r.Context(), userID, sessionID)
	})
}

func BarterSetTopUp(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return barterHandler(svc, logg, func(svc checkoutsvc.Service, r *http.Request) (*barter.Draft, error) {
		userID, sessionID, err := sessionScope(r)
		if err != nil {
			return nil, err
		}
		var payload topUpRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.SetBarterTopUp(r.Context(), userID, sessionID, payload.Amount)
	})
}

func BarterSetExchange(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return barterHandler(svc, logg, func(svc checkoutsvc.Service, r *http.Request) (*barter.Draft, error) {
		userID, sessionID, err := sessionScope(r)
		if err != nil {
			return nil, err
		}
		var exchange barter.Exchange
		if err := validators.DecodeJSONBody(r, &exchange); err != nil {
			return nil, err
		}
		return svc.SetBarterExchange(r.Context(), userID, sessionID, exchange)
	})
}

// BarterSubmit reads the photos of a multipart form and submits the proposal. The
// body is capped at the photo allowance so an oversized upload fails before parsing.
func BarterSubmit(svc checkoutsvc.Service, limits PhotoLimits, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}
		userID, sessionID, err := sessionScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		photos, err := readPhotos(w, r, limits)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		session, err := svc.SubmitBarter(r.Context(), userID, sessionID, photos)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, session)
	}
}

func readPhotos(w http.ResponseWriter, r *http.Request, limits PhotoLimits) ([]marketplace.BarterPhoto, error) {
	if limits.MaxPhotos > 0 && limits.MaxPhotoBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, int64(limits.MaxPhotos)*limits.MaxPhotoBytes+multipartOverrun)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "upload exceeds the photo allowance")
		}
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart form")
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	headers := r.MultipartForm.File[photoField]
	if limits.MaxPhotos > 0 && len(headers) > limits.MaxPhotos {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "too many photos").
			WithDetails(map[string]any{"maxPhotos": limits.MaxPhotos})
	}
	photos := make([]marketplace.BarterPhoto, 0, len(headers))
	for _, fh := range headers {
		photo, err := readPhoto(fh, limits.MaxPhotoBytes)
		if err != nil {
			return nil, err
		}
		photos = append(photos, photo)
	}
	return photos, nil
}

func readPhoto(fh *multipart.FileHeader, maxBytes int64) (marketplace.BarterPhoto, error) {
	if maxBytes > 0 && fh.Size > maxBytes {
		return marketplace.BarterPhoto{}, pkgerrors.New(pkgerrors.CodeValidation, "photo exceeds the size limit").
			WithDetails(map[string]any{"file": fh.Filename, "maxBytes": maxBytes})
	}
	f, err := fh.Open()
	if err != nil {
		return marketplace.BarterPhoto{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read photo")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return marketplace.BarterPhoto{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read photo")
	}
	return marketplace.BarterPhoto{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
