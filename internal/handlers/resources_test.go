package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrisisResourcesDirectory(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.get(t, "/api/v1/chat/crisis-resources")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec)
	assert.Equal(t, "en", body["language"])
	assert.Equal(t, "If you are in immediate danger, call 999 or 112 now.", body["note"])

	hotlines, _ := body["crisis_hotlines"].([]interface{})
	require.Len(t, hotlines, 2)
	first, _ := hotlines[0].(map[string]interface{})
	assert.Equal(t, "Kenya Red Cross", first["name"])
	assert.Equal(t, "1199", first["number"])

	assert.Len(t, body["hospitals"], 2)
	assert.Len(t, body["online_resources"], 2)
	assert.Len(t, body["support_groups"], 1)
}

func TestCrisisResourcesSwahiliNote(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.get(t, "/api/v1/chat/crisis-resources?language=sw")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec)
	assert.Equal(t, "sw", body["language"])
	assert.Equal(t, "Ukiwa katika hatari ya papo hapo, piga simu 999 au 112 sasa.", body["note"])
}

func TestCrisisResourcesUnknownLanguageFallsBack(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.get(t, "/api/v1/chat/crisis-resources?language=fr")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "en", decodeJSON(t, rec)["language"])
}

func TestCrisisResourcesByCategory(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.get(t, "/api/v1/chat/crisis-resources?category=hospitals")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec)
	assert.Equal(t, "hospitals", body["category"])
	assert.NotContains(t, body, "crisis_hotlines")

	entries, _ := body["resources"].([]interface{})
	require.Len(t, entries, 2)
	first, _ := entries[0].(map[string]interface{})
	assert.Contains(t, first["name"], "Mathari")
}

func TestCrisisResourcesUnknownCategory(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.get(t, "/api/v1/chat/crisis-resources?category=gyms")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Unknown resource category", decodeJSON(t, rec)["detail"])
}
