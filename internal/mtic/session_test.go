package mtic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/model"
)

func newEngine(store *memStore) *Sessions {
	registry := NewRegistry(store, zap.NewNop())
	return NewSessions(store, registry, zap.NewNop())
}

func seedDocument(store *memStore, id uint, name string) {
	store.documents[id] = model.Document{
		ID:                 id,
		UID:                "doc-uid-" + name,
		TenantOrgID:        9,
		DocumentTemplateID: id + 100,
		DocumentTemplate:   model.DocumentTemplate{ID: id + 100, Name: name},
	}
}

func TestOpenSessionRegistersReaderInPassing(t *testing.T) {
	store := newMemStore()
	engine := newEngine(store)
	ctx := context.Background()

	session, err := engine.Open(ctx, "R1", 5, 11, 51.5, -0.1)
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "R1", session.MTICReaderID)
	assert.Equal(t, uint(11), session.TenantUserID)
	assert.Nil(t, session.EndDateTime)

	reader, err := store.ReaderByID(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, uint(5), reader.TenantID)
}

func TestOpenSessionFailsOnDeactivatedReader(t *testing.T) {
	store := newMemStore()
	store.readers["R1"] = model.MTICReader{ID: "R1", TenantID: 5, IsActive: false}
	engine := newEngine(store)

	_, err := engine.Open(context.Background(), "R1", 5, 11, 0, 0)
	assert.ErrorIs(t, err, ErrReaderDeactivated)
	assert.Empty(t, store.sessions)
}

func TestCloseSessionOnce(t *testing.T) {
	store := newMemStore()
	engine := newEngine(store)
	end := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return end }
	ctx := context.Background()

	session, err := engine.Open(ctx, "R1", 5, 11, 0, 0)
	require.NoError(t, err)

	closed, err := engine.Close(ctx, session.ID, 11)
	require.NoError(t, err)
	require.NotNil(t, closed.EndDateTime)
	assert.Equal(t, end, *closed.EndDateTime)

	// A closed session never reopens; a second close reports not found
	_, err = engine.Close(ctx, session.ID, 11)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCloseSessionIgnoresForeignAndUnknown(t *testing.T) {
	store := newMemStore()
	engine := newEngine(store)
	ctx := context.Background()

	session, err := engine.Open(ctx, "R1", 5, 11, 0, 0)
	require.NoError(t, err)

	// Another operator, an unknown id: same answer for both
	_, err = engine.Close(ctx, session.ID, 22)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = engine.Close(ctx, "no-such-session", 11)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// The rightful owner can still close it afterwards
	_, err = engine.Close(ctx, session.ID, 11)
	assert.NoError(t, err)
}

func TestLinkUnitsRegistersUnseenChips(t *testing.T) {
	store := newMemStore()
	engine := newEngine(store)
	ctx := context.Background()
	seedDocument(store, 1, "certificate")

	session, err := engine.Open(ctx, "R1", 5, 11, 51.5, -0.1)
	require.NoError(t, err)

	links, err := engine.LinkUnitsToDocument(ctx, LinkRequest{
		SessionID:  session.ID,
		DocumentID: 1,
		Units: []UnitDescriptor{
			{ID: "M1", UID: "uid-m1"},
			{ID: "M2", UID: "uid-m2"},
		},
		Primary: true,
	})
	require.NoError(t, err)
	require.Len(t, links, 2)

	for _, link := range links {
		assert.Equal(t, uint(1), link.DocumentID)
		assert.Equal(t, session.ID, link.MTICSessionID)
		assert.True(t, link.IsPrimary)
	}

	// Both chips were registered in passing with the session's capture context
	for _, id := range []string{"M1", "M2"} {
		_, err := store.UnitByID(ctx, id)
		require.NoError(t, err)
		events := store.eventsFor(id)
		require.Len(t, events, 1)
		assert.Equal(t, EventCreate, events[0].Event)
		assert.Equal(t, "R1", events[0].MTICReaderID)
		assert.Equal(t, 51.5, events[0].Lat)
	}
}

func TestLinkUnitsValidatesBatchBeforeWriting(t *testing.T) {
	store := newMemStore()
	engine := newEngine(store)
	ctx := context.Background()
	seedDocument(store, 1, "certificate")

	session, err := engine.Open(ctx, "R1", 5, 11, 0, 0)
	require.NoError(t, err)

	_, err = engine.LinkUnitsToDocument(ctx, LinkRequest{
		SessionID:  session.ID,
		DocumentID: 1,
		Units: []UnitDescriptor{
			{ID: "M1", UID: "uid-m1"},
			{ID: "", UID: "broken"},
		},
	})
	assert.ErrorIs(t, err, ErrInvalidUnitDescriptor)

	// Nothing was written, not even for the valid leading entry
	_, err = store.UnitByID(ctx, "M1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, store.unitDocs)
}

func TestLinkUnitsUnknownSessionAndDocument(t *testing.T) {
	store := newMemStore()
	engine := newEngine(store)
	ctx := context.Background()
	seedDocument(store, 1, "certificate")

	units := []UnitDescriptor{{ID: "M1", UID: "uid-m1"}}

	_, err := engine.LinkUnitsToDocument(ctx, LinkRequest{SessionID: "no-such", DocumentID: 1, Units: units})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	session, err := engine.Open(ctx, "R1", 5, 11, 0, 0)
	require.NoError(t, err)
	_, err = engine.LinkUnitsToDocument(ctx, LinkRequest{SessionID: session.ID, DocumentID: 42, Units: units})
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestSecondPrimaryAssociationRejected(t *testing.T) {
	store := newMemStore()
	engine := newEngine(store)
	ctx := context.Background()
	seedDocument(store, 1, "certificate")
	seedDocument(store, 2, "shipping-manifest")

	session, err := engine.Open(ctx, "R1", 5, 11, 0, 0)
	require.NoError(t, err)

	units := []UnitDescriptor{{ID: "M1", UID: "uid-m1"}}
	_, err = engine.LinkUnitsToDocument(ctx, LinkRequest{SessionID: session.ID, DocumentID: 1, Units: units, Primary: true})
	require.NoError(t, err)

	_, err = engine.LinkUnitsToDocument(ctx, LinkRequest{SessionID: session.ID, DocumentID: 2, Units: units, Primary: true})
	assert.ErrorIs(t, err, ErrPrimaryDocumentExists)

	// The original primary is untouched and still points at document 1
	links, err := store.UnitDocuments(ctx, "M1")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, uint(1), links[0].DocumentID)
	assert.True(t, links[0].IsPrimary)

	// A non-primary association with the second document is still allowed
	_, err = engine.LinkUnitsToDocument(ctx, LinkRequest{SessionID: session.ID, DocumentID: 2, Units: units})
	require.NoError(t, err)
}

func TestFailedBatchWritesNoLinks(t *testing.T) {
	store := newMemStore()
	engine := newEngine(store)
	ctx := context.Background()
	seedDocument(store, 1, "certificate")
	seedDocument(store, 2, "shipping-manifest")

	session, err := engine.Open(ctx, "R1", 5, 11, 0, 0)
	require.NoError(t, err)

	// M2 already holds a primary document
	_, err = engine.LinkUnitsToDocument(ctx, LinkRequest{
		SessionID:  session.ID,
		DocumentID: 1,
		Units:      []UnitDescriptor{{ID: "M2", UID: "uid-m2"}},
		Primary:    true,
	})
	require.NoError(t, err)

	// A primary batch where a later unit conflicts must land nothing at all
	_, err = engine.LinkUnitsToDocument(ctx, LinkRequest{
		SessionID:  session.ID,
		DocumentID: 2,
		Units: []UnitDescriptor{
			{ID: "M1", UID: "uid-m1"},
			{ID: "M2", UID: "uid-m2"},
		},
		Primary: true,
	})
	assert.ErrorIs(t, err, ErrPrimaryDocumentExists)

	// M1 has no committed links, so the corrected batch is retryable
	links, err := store.UnitDocuments(ctx, "M1")
	require.NoError(t, err)
	assert.Empty(t, links)

	// M2 keeps exactly its original primary
	links, err = store.UnitDocuments(ctx, "M2")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, uint(1), links[0].DocumentID)

	retry, err := engine.LinkUnitsToDocument(ctx, LinkRequest{
		SessionID:  session.ID,
		DocumentID: 2,
		Units:      []UnitDescriptor{{ID: "M1", UID: "uid-m1"}},
		Primary:    true,
	})
	require.NoError(t, err)
	assert.Len(t, retry, 1)
}

func TestSummaryReturnsPrimaryIdentityOnly(t *testing.T) {
	store := newMemStore()
	engine := newEngine(store)
	ctx := context.Background()
	seedDocument(store, 1, "certificate")
	seedDocument(store, 2, "shipping-manifest")

	session, err := engine.Open(ctx, "R1", 5, 11, 0, 0)
	require.NoError(t, err)
	units := []UnitDescriptor{{ID: "M1", UID: "uid-m1"}}
	_, err = engine.LinkUnitsToDocument(ctx, LinkRequest{SessionID: session.ID, DocumentID: 1, Units: units, Primary: true})
	require.NoError(t, err)
	_, err = engine.LinkUnitsToDocument(ctx, LinkRequest{SessionID: session.ID, DocumentID: 2, Units: units})
	require.NoError(t, err)

	summary, err := engine.Summary(ctx, "M1", CaptureMeta{ReaderID: "R2"})
	require.NoError(t, err)
	assert.Equal(t, "M1", summary.Unit.ID)
	require.NotNil(t, summary.PrimaryDocument)
	assert.Equal(t, uint(1), summary.PrimaryDocument.DocumentID)
	assert.Equal(t, "certificate", summary.PrimaryDocument.TemplateName)
}

func TestSummaryWithoutAssociations(t *testing.T) {
	store := newMemStore()
	engine := newEngine(store)
	ctx := context.Background()

	registry := NewRegistry(store, zap.NewNop())
	_, err := registry.RegisterUnit(ctx, UnitDescriptor{ID: "M1", UID: "uid-m1"}, CaptureMeta{})
	require.NoError(t, err)

	summary, err := engine.Summary(ctx, "M1", CaptureMeta{})
	require.NoError(t, err)
	assert.Equal(t, "M1", summary.Unit.ID)
	assert.Nil(t, summary.PrimaryDocument)
}

func TestSummaryUnknownUnit(t *testing.T) {
	engine := newEngine(newMemStore())

	_, err := engine.Summary(context.Background(), "no-such", CaptureMeta{})
	assert.ErrorIs(t, err, ErrUnitNotFound)
}

func TestDetailsSplitsPrimaryAndRelated(t *testing.T) {
	store := newMemStore()
	engine := newEngine(store)
	ctx := context.Background()
	seedDocument(store, 1, "certificate")
	seedDocument(store, 2, "shipping-manifest")

	session, err := engine.Open(ctx, "R1", 5, 11, 51.5, -0.1)
	require.NoError(t, err)
	units := []UnitDescriptor{{ID: "M1", UID: "uid-m1"}}
	_, err = engine.LinkUnitsToDocument(ctx, LinkRequest{SessionID: session.ID, DocumentID: 1, Units: units, Primary: true})
	require.NoError(t, err)
	_, err = engine.LinkUnitsToDocument(ctx, LinkRequest{SessionID: session.ID, DocumentID: 2, Units: units})
	require.NoError(t, err)

	details, err := engine.Details(ctx, "M1", CaptureMeta{})
	require.NoError(t, err)

	require.NotNil(t, details.PrimaryDocument)
	assert.Equal(t, uint(1), details.PrimaryDocument.DocumentID)
	assert.Equal(t, session.ID, details.PrimaryDocument.MTICSessionID)

	require.Len(t, details.RelatedDocuments, 1)
	assert.Equal(t, uint(2), details.RelatedDocuments[0].DocumentID)
	assert.Equal(t, "shipping-manifest", details.RelatedDocuments[0].TemplateName)

	require.NotNil(t, details.Session)
	assert.Equal(t, session.ID, details.Session.SessionID)
	assert.Equal(t, "R1", details.Session.MTICReaderID)
	assert.Equal(t, 51.5, details.Session.Lat)
}

func TestDetailsWithoutAssociations(t *testing.T) {
	store := newMemStore()
	engine := newEngine(store)
	ctx := context.Background()

	registry := NewRegistry(store, zap.NewNop())
	_, err := registry.RegisterUnit(ctx, UnitDescriptor{ID: "M1", UID: "uid-m1"}, CaptureMeta{})
	require.NoError(t, err)

	details, err := engine.Details(ctx, "M1", CaptureMeta{})
	require.NoError(t, err)
	assert.Nil(t, details.PrimaryDocument)
	assert.Nil(t, details.Session)
	assert.NotNil(t, details.RelatedDocuments)
	assert.Empty(t, details.RelatedDocuments)
}

func TestLookupsAppendSearchEvents(t *testing.T) {
	store := newMemStore()
	engine := newEngine(store)
	ctx := context.Background()

	registry := NewRegistry(store, zap.NewNop())
	_, err := registry.RegisterUnit(ctx, UnitDescriptor{ID: "M1", UID: "uid-m1"}, CaptureMeta{})
	require.NoError(t, err)

	_, err = engine.Summary(ctx, "M1", CaptureMeta{ReaderID: "R9", Lat: 1, Lon: 2})
	require.NoError(t, err)
	_, err = engine.Details(ctx, "M1", CaptureMeta{ReaderID: "R9"})
	require.NoError(t, err)

	var searches int
	for _, event := range store.eventsFor("M1") {
		if event.Event == EventSearch {
			searches++
		}
	}
	assert.Equal(t, 2, searches)
}
