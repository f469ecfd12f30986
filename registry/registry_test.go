package registry_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/appropriation-engine/core"
	"github.com/warp/appropriation-engine/registry"
)

func TestPersonInfo_Mock(t *testing.T) {
	// GIVEN: The mock registry
	// WHEN: Looking up a citizen with relations
	// THEN: All six relations are enriched with their own record

	p, err := registry.PersonInfo(context.Background(), registry.Mock{}, "2704785263")
	require.NoError(t, err)

	assert.Equal(t, "Jens Jensner", p.FirstName)
	require.Len(t, p.Relations, 6)
	kinds := make([]string, 0, len(p.Relations))
	for _, rel := range p.Relations {
		kinds = append(kinds, rel.Kind)
		require.NotNil(t, rel.Person, rel.CPR)
	}
	assert.Equal(t, []string{"aegtefaelle", "barn", "barn", "barn", "mor", "far"}, kinds)
	assert.Equal(t, "0123456780", p.Relations[0].CPR)
}

func TestMock_RejectsMalformedCPR(t *testing.T) {
	for _, cpr := range []string{"", "12345", "27047852631", "270478-5263"} {
		_, err := registry.Mock{}.Lookup(context.Background(), cpr)
		assert.True(t, core.IsNotFound(err), cpr)
	}
}

func TestHTTP_Lookup(t *testing.T) {
	// GIVEN: A registry gateway that knows one person with one unknown relative
	// WHEN: Enriching that person over HTTP
	// THEN: The unknown relative stays bare

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/persons/1111111111" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(core.Person{
			CPR:       "1111111111",
			FirstName: "Mette",
			LastName:  "Madsen",
			Relations: []core.Relation{{CPR: "2222222222", Kind: "barn"}},
		})
	}))
	defer srv.Close()

	client := registry.NewHTTP(srv.URL + "/api")
	p, err := registry.PersonInfo(context.Background(), client, "1111111111")
	require.NoError(t, err)
	assert.Equal(t, "Mette", p.FirstName)
	require.Len(t, p.Relations, 1)
	assert.Nil(t, p.Relations[0].Person)

	_, err = client.Lookup(context.Background(), "2222222222")
	assert.True(t, core.IsNotFound(err))
}

func TestHTTP_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := registry.NewHTTP(srv.URL).Lookup(context.Background(), "1111111111")
	require.Error(t, err)
	assert.False(t, core.IsNotFound(err))
}
