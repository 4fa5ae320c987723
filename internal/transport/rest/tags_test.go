package rest

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/notetaken-sync/internal/domain"
)

func TestListTags(t *testing.T) {
	t.Parallel()

	st := signedInState()
	st.Tags = []domain.Tag{{ID: uuid.New(), Name: "home"}, {ID: uuid.New(), Name: "work"}}
	api := newTestAPI(st)

	rec := api.do(t, http.MethodGet, "/v1/tags", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, st.Tags, decode[tagsResponse](t, rec).Tags)
}

func TestCreateTag(t *testing.T) {
	t.Parallel()

	api := newTestAPI(signedInState())

	rec := api.do(t, http.MethodPost, "/v1/tags", `{"name":"urgent"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	got := decode[domain.Tag](t, rec)
	assert.Equal(t, "urgent", got.Name)
	assert.NotEqual(t, uuid.Nil, got.ID)

	rec = api.do(t, http.MethodPost, "/v1/tags", `[]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteTag(t *testing.T) {
	t.Parallel()

	api := newTestAPI(signedInState())
	id := uuid.New()

	rec := api.do(t, http.MethodDelete, "/v1/tags/"+id.String(), "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []storeCall{{Op: "DeleteTag", IDs: []uuid.UUID{id}}}, api.store.calls)

	rec = api.do(t, http.MethodDelete, "/v1/tags/nope", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
