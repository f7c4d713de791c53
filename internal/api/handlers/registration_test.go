package handlers

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/whome/internal/models"
	"github.com/your-org/whome/internal/registration"
	"github.com/your-org/whome/internal/scan"
	"github.com/your-org/whome/pkg/dto"
)

type fakeRegistrar struct {
	err        error
	result     *registration.Result
	fields     registration.Fields
	handOffCam string
	images     int
}

func (f *fakeRegistrar) Capture(ctx context.Context, img image.Image) (*registration.Captured, error) {
	f.images++
	if f.err != nil {
		return nil, f.err
	}
	return &registration.Captured{Box: image.Rect(10, 20, 110, 140), Snapshot: []byte{0xff, 0xd8}}, nil
}

func (f *fakeRegistrar) RegisterImage(ctx context.Context, fields registration.Fields, img image.Image) (*registration.Result, error) {
	f.images++
	f.fields = fields
	return f.result, f.err
}

func (f *fakeRegistrar) RegisterFromHandOff(ctx context.Context, source registration.HandOffSource, cameraID string, fields registration.Fields) (*registration.Result, error) {
	f.handOffCam = cameraID
	f.fields = fields
	if _, err := source.HandOff(cameraID); err != nil {
		return nil, err
	}
	return f.result, f.err
}

type handOffs map[string]image.Image

func (h handOffs) HandOff(cameraID string) (image.Image, error) {
	img, ok := h[cameraID]
	if !ok {
		return nil, scan.ErrNoHandOff
	}
	return img, nil
}

func newRegistrationRouter(reg *fakeRegistrar, model readyModel, frames handOffs) *gin.Engine {
	h := NewRegistrationHandler(reg, model, frames)
	r := gin.New()
	r.POST("/register", h.Register)
	r.POST("/capture", h.Capture)
	return r
}

func registeredResult() *registration.Result {
	return &registration.Result{Identity: &models.Identity{
		ID: uuid.New(), Name: "Ada", Email: "ada@example.com", Phone: "555",
		SnapshotKey: "identities/x/snapshot.jpg", RegisteredAt: fixedTime, UpdatedAt: fixedTime,
	}}
}

var adaFields = map[string]string{"name": "Ada", "email": "ada@example.com", "phone": "555"}

func TestRegister_WithImage(t *testing.T) {
	reg := &fakeRegistrar{result: registeredResult()}
	r := newRegistrationRouter(reg, readyModel{}, nil)

	body, ct := multipartBody(t, adaFields, upload{"image", "face.jpg", jpegBytes(t, testImage(64, 64))})
	w := serve(r, http.MethodPost, "/register", body, ct)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp dto.RegisterResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Ada", resp.Identity.Name)
	assert.Equal(t, "/v1/identities/"+resp.Identity.ID.String()+"/snapshot", resp.Identity.SnapshotURL)
	assert.Nil(t, resp.PossibleDuplicate)
	assert.Equal(t, "ada@example.com", reg.fields.Email)
}

func TestRegister_NoFaceAsksForRetry(t *testing.T) {
	reg := &fakeRegistrar{err: registration.ErrNoFaceDetected}
	r := newRegistrationRouter(reg, readyModel{}, nil)

	body, ct := multipartBody(t, adaFields, upload{"image", "face.jpg", jpegBytes(t, testImage(32, 32))})
	w := serve(r, http.MethodPost, "/register", body, ct)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `{"error":"no face detected","retry":true}`, w.Body.String())
}

func TestRegister_FromHandOff(t *testing.T) {
	reg := &fakeRegistrar{result: registeredResult()}
	r := newRegistrationRouter(reg, readyModel{}, handOffs{"front": testImage(32, 32)})

	fields := map[string]string{"camera": "front"}
	for k, v := range adaFields {
		fields[k] = v
	}
	body, ct := multipartBody(t, fields)
	w := serve(r, http.MethodPost, "/register", body, ct)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "front", reg.handOffCam)

	fields["camera"] = "back"
	body, ct = multipartBody(t, fields)
	w = serve(r, http.MethodPost, "/register", body, ct)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRegister_Errors(t *testing.T) {
	t.Run("missing image", func(t *testing.T) {
		reg := &fakeRegistrar{}
		body, ct := multipartBody(t, adaFields)
		w := serve(newRegistrationRouter(reg, readyModel{}, nil), http.MethodPost, "/register", body, ct)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Zero(t, reg.images)
	})

	t.Run("not an image", func(t *testing.T) {
		body, ct := multipartBody(t, adaFields, upload{"image", "face.jpg", []byte("hello")})
		w := serve(newRegistrationRouter(&fakeRegistrar{}, readyModel{}, nil), http.MethodPost, "/register", body, ct)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid fields", func(t *testing.T) {
		reg := &fakeRegistrar{err: registration.ErrInvalidFields}
		body, ct := multipartBody(t, map[string]string{"name": "Ada"}, upload{"image", "f.jpg", jpegBytes(t, testImage(16, 16))})
		w := serve(newRegistrationRouter(reg, readyModel{}, nil), http.MethodPost, "/register", body, ct)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("model unavailable", func(t *testing.T) {
		reg := &fakeRegistrar{}
		body, ct := multipartBody(t, adaFields, upload{"image", "f.jpg", jpegBytes(t, testImage(16, 16))})
		w := serve(newRegistrationRouter(reg, readyModel{err: assert.AnError}, nil), http.MethodPost, "/register", body, ct)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Zero(t, reg.images)
	})
}

func TestCapture(t *testing.T) {
	r := newRegistrationRouter(&fakeRegistrar{}, readyModel{}, nil)

	body, ct := multipartBody(t, nil, upload{"image", "f.jpg", jpegBytes(t, testImage(200, 200))})
	w := serve(r, http.MethodPost, "/capture", body, ct)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp dto.CaptureResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.FaceDetected)
	assert.Equal(t, [4]int{10, 20, 110, 140}, resp.Box)
	assert.Equal(t, "/9g=", resp.SnapshotB64)

	r = newRegistrationRouter(&fakeRegistrar{err: registration.ErrNoFaceDetected}, readyModel{}, nil)
	body, ct = multipartBody(t, nil, upload{"image", "f.jpg", jpegBytes(t, testImage(20, 20))})
	w = serve(r, http.MethodPost, "/capture", body, ct)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
