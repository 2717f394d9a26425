package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"billoffice/internal/apperr"
	"billoffice/internal/artifact"
	"billoffice/internal/model"
	"billoffice/internal/render"
)

type fakeDocs struct {
	byID   map[int64]*model.Document
	nextID int64

	createErr   error
	getErr      error
	setErr      error
	replaceErr  error
	addAttErr   error
	rmAttErr    error
	deleteErr   error
	deletedIDs  []int64
	setArtifact []string
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{byID: map[int64]*model.Document{}, nextID: 1}
}

func (f *fakeDocs) Create(_ context.Context, doc *model.Document) error {
	if f.createErr != nil {
		return f.createErr
	}
	doc.ID = f.nextID
	f.nextID++
	cp := *doc
	f.byID[doc.ID] = &cp
	return nil
}

func (f *fakeDocs) Get(_ context.Context, id, ownerID int64) (*model.Document, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	doc, ok := f.byID[id]
	if !ok || doc.OwnerID != ownerID {
		return nil, apperr.NotFound("document %d not found", id)
	}
	cp := *doc
	cp.Attachments = append([]string(nil), doc.Attachments...)
	return &cp, nil
}

func (f *fakeDocs) SetArtifactFile(_ context.Context, id, ownerID int64, filename, _ string) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.byID[id].ArtifactFile = filename
	f.setArtifact = append(f.setArtifact, filename)
	return nil
}

func (f *fakeDocs) ReplaceArtifactFile(_ context.Context, id, ownerID int64, filename string) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.byID[id].ArtifactFile = filename
	return nil
}

func (f *fakeDocs) AddAttachment(_ context.Context, id, ownerID int64, filename string) error {
	if f.addAttErr != nil {
		return f.addAttErr
	}
	doc := f.byID[id]
	doc.Attachments = append(doc.Attachments, filename)
	return nil
}

func (f *fakeDocs) RemoveAttachment(_ context.Context, id, ownerID int64, filename string) error {
	if f.rmAttErr != nil {
		return f.rmAttErr
	}
	doc := f.byID[id]
	out := doc.Attachments[:0]
	for _, a := range doc.Attachments {
		if a != filename {
			out = append(out, a)
		}
	}
	doc.Attachments = out
	return nil
}

func (f *fakeDocs) Delete(_ context.Context, id, ownerID int64) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.byID[id]; !ok {
		return apperr.NotFound("document %d not found", id)
	}
	delete(f.byID, id)
	f.deletedIDs = append(f.deletedIDs, id)
	return nil
}

type fakeArtifacts struct {
	objects map[string]*artifact.Object

	uploadErr   error
	downloadErr error
	deleteErr   error
	deleted     []string
}

func newFakeArtifacts() *fakeArtifacts {
	return &fakeArtifacts{objects: map[string]*artifact.Object{}}
}

func (f *fakeArtifacts) Upload(_ context.Context, data []byte, filename string, kind model.DocumentKind, ownerID int64, contentType string, category artifact.Category) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	path := artifact.DerivePath(kind, category, ownerID, filename)
	f.objects[path] = &artifact.Object{Data: data, ContentType: contentType, Length: int64(len(data))}
	return path, nil
}

func (f *fakeArtifacts) Download(_ context.Context, path string) (*artifact.Object, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	obj, ok := f.objects[path]
	if !ok {
		return nil, apperr.NotFound("artifact not found: %s", path)
	}
	return obj, nil
}

func (f *fakeArtifacts) Delete(_ context.Context, path string) error {
	f.deleted = append(f.deleted, path)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.objects, path)
	return nil
}

type fakeRenderer struct {
	err   error
	bytes []byte
}

func (f *fakeRenderer) Render(*model.Document, []render.Line, *model.User, *model.Client) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.bytes != nil {
		return f.bytes, nil
	}
	return []byte("%PDF-fake"), nil
}

type fakeUsers struct{ user *model.User }

func (f *fakeUsers) GetByID(_ context.Context, id int64) (*model.User, error) {
	if f.user == nil || f.user.ID != id {
		return nil, apperr.NotFound("user %d not found", id)
	}
	return f.user, nil
}

type fakeClients struct{ client *model.Client }

func (f *fakeClients) Get(_ context.Context, id, ownerID int64) (*model.Client, error) {
	if f.client == nil || f.client.ID != id {
		return nil, apperr.NotFound("client %d not found", id)
	}
	return f.client, nil
}

type fakeCategories struct{ byID map[int64]*model.Category }

func (f *fakeCategories) Get(_ context.Context, id, ownerID int64) (*model.Category, error) {
	cat, ok := f.byID[id]
	if !ok {
		return nil, apperr.NotFound("category %d not found", id)
	}
	return cat, nil
}

type fixture struct {
	docs       *fakeDocs
	artifacts  *fakeArtifacts
	renderer   *fakeRenderer
	coord      *Coordinator
	owner      *model.User
	client     *model.Client
}

func newFixture() *fixture {
	docs := newFakeDocs()
	artifacts := newFakeArtifacts()
	renderer := &fakeRenderer{}
	owner := &model.User{ID: 10, CompanyName: "Acme Studio", Address: "1 Main St"}
	client := &model.Client{ID: 20, OwnerID: 10, Name: "Globex", Email: "billing@globex.test"}
	categories := &fakeCategories{byID: map[int64]*model.Category{
		5: {ID: 5, OwnerID: 10, Name: "Consulting"},
	}}

	coord := NewCoordinator(docs, artifacts, renderer, &fakeUsers{user: owner}, &fakeClients{client: client}, categories, zap.NewNop())
	return &fixture{docs: docs, artifacts: artifacts, renderer: renderer, coord: coord, owner: owner, client: client}
}

func invoiceDoc() *model.Document {
	clientID := int64(20)
	return &model.Document{
		Kind:     model.KindInvoice,
		OwnerID:  10,
		ClientID: &clientID,
		Number:   "INV-001",
		Currency: "EUR",
		Items:    []model.LineItem{{CategoryID: 5, Quantity: 2, UnitPrice: 100}},
	}
}

func TestCreateWithRenderSuccess(t *testing.T) {
	f := newFixture()
	doc := invoiceDoc()

	require.NoError(t, f.coord.CreateWithRender(context.Background(), doc))

	assert.Equal(t, "INV-001.pdf", doc.ArtifactFile)
	assert.Equal(t, "INV-001.pdf", f.docs.byID[doc.ID].ArtifactFile)
	obj, ok := f.artifacts.objects["Invoices/10/INV-001.pdf"]
	require.True(t, ok, "invoice pdf stored without a category segment")
	assert.Equal(t, "application/pdf", obj.ContentType)
}

func TestCreateWithRenderExpenseCategoryPath(t *testing.T) {
	f := newFixture()
	doc := invoiceDoc()
	doc.Kind = model.KindExpense
	doc.Number = "EXP-7"

	require.NoError(t, f.coord.CreateWithRender(context.Background(), doc))

	_, ok := f.artifacts.objects["Expense/Generated_pdfs/10/EXP-7.pdf"]
	assert.True(t, ok)
}

func TestCreateWithRenderUnknownOwner(t *testing.T) {
	f := newFixture()
	doc := invoiceDoc()
	doc.OwnerID = 999

	err := f.coord.CreateWithRender(context.Background(), doc)
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
	assert.Empty(t, f.docs.byID, "no record inserted when the owner cannot be resolved")
}

func TestCreateWithRenderRenderFailureKeepsRecord(t *testing.T) {
	f := newFixture()
	f.renderer.err = apperr.RenderFailed("pdf output failed", errors.New("boom"))
	doc := invoiceDoc()

	err := f.coord.CreateWithRender(context.Background(), doc)
	require.Error(t, err)
	assert.True(t, apperr.IsRenderFailed(err))

	// The record survives as a recoverable orphan with no artifact pointer.
	require.Contains(t, f.docs.byID, doc.ID)
	assert.Empty(t, f.docs.byID[doc.ID].ArtifactFile)
	assert.Empty(t, f.artifacts.objects)
}

func TestCreateWithRenderUploadFailureKeepsRecord(t *testing.T) {
	f := newFixture()
	f.artifacts.uploadErr = apperr.StoreUnavailable("artifact upload failed", errors.New("conn refused"))
	doc := invoiceDoc()

	err := f.coord.CreateWithRender(context.Background(), doc)
	require.Error(t, err)
	assert.True(t, apperr.IsStoreUnavailable(err))
	require.Contains(t, f.docs.byID, doc.ID)
	assert.Empty(t, f.docs.byID[doc.ID].ArtifactFile)
}

func TestCreateWithRenderPatchFailureCompensates(t *testing.T) {
	f := newFixture()
	patchErr := apperr.StoreUnavailable("update document", errors.New("db gone"))
	f.docs.setErr = patchErr
	doc := invoiceDoc()

	err := f.coord.CreateWithRender(context.Background(), doc)
	require.ErrorIs(t, err, patchErr)

	// The uploaded object was removed so no success is recorded anywhere,
	// and the record survives pointerless.
	assert.Empty(t, f.artifacts.objects)
	assert.Contains(t, f.artifacts.deleted, "Invoices/10/INV-001.pdf")
	require.Contains(t, f.docs.byID, doc.ID)
	assert.Empty(t, f.docs.byID[doc.ID].ArtifactFile)
}

func TestCreateWithRenderCompensationFailureReturnsPatchError(t *testing.T) {
	f := newFixture()
	patchErr := apperr.StoreUnavailable("update document", errors.New("db gone"))
	f.docs.setErr = patchErr
	f.artifacts.deleteErr = errors.New("redis gone too")
	doc := invoiceDoc()

	err := f.coord.CreateWithRender(context.Background(), doc)
	require.ErrorIs(t, err, patchErr)
}

func createdDoc(t *testing.T, f *fixture) *model.Document {
	t.Helper()
	doc := invoiceDoc()
	require.NoError(t, f.coord.CreateWithRender(context.Background(), doc))
	return doc
}

func TestReplaceArtifactSuccess(t *testing.T) {
	f := newFixture()
	doc := createdDoc(t, f)

	name, err := f.coord.ReplaceArtifact(context.Background(), doc.ID, doc.OwnerID, []byte("new bytes"), "corrected.pdf", "application/pdf")
	require.NoError(t, err)
	assert.NotEqual(t, "INV-001.pdf", name)
	assert.Contains(t, name, "corrected.pdf")

	assert.Equal(t, name, f.docs.byID[doc.ID].ArtifactFile)
	_, oldExists := f.artifacts.objects["Invoices/10/INV-001.pdf"]
	assert.False(t, oldExists, "old object deleted after the pointer moved")
	obj, ok := f.artifacts.objects["Invoices/10/"+name]
	require.True(t, ok)
	assert.Equal(t, []byte("new bytes"), obj.Data)
}

func TestReplaceArtifactPatchFailureRollsBackUpload(t *testing.T) {
	f := newFixture()
	doc := createdDoc(t, f)
	f.docs.replaceErr = apperr.StoreUnavailable("update document", errors.New("db gone"))

	_, err := f.coord.ReplaceArtifact(context.Background(), doc.ID, doc.OwnerID, []byte("new"), "corrected.pdf", "application/pdf")
	require.Error(t, err)

	// Old pointer and old object are both intact; the fresh upload is gone.
	assert.Equal(t, "INV-001.pdf", f.docs.byID[doc.ID].ArtifactFile)
	_, oldExists := f.artifacts.objects["Invoices/10/INV-001.pdf"]
	assert.True(t, oldExists)
	assert.Len(t, f.artifacts.objects, 1)
}

func TestReplaceArtifactOldDeleteFailureTolerated(t *testing.T) {
	f := newFixture()
	doc := createdDoc(t, f)
	f.artifacts.deleteErr = errors.New("transient redis error")

	name, err := f.coord.ReplaceArtifact(context.Background(), doc.ID, doc.OwnerID, []byte("new"), "corrected.pdf", "application/pdf")
	require.NoError(t, err, "a leaked old object never fails the replace")
	assert.Equal(t, name, f.docs.byID[doc.ID].ArtifactFile)
}

func TestReplaceArtifactUnknownDocument(t *testing.T) {
	f := newFixture()
	_, err := f.coord.ReplaceArtifact(context.Background(), 404, 10, []byte("x"), "a.pdf", "application/pdf")
	assert.True(t, apperr.IsNotFound(err))
}

func TestAttachDocumentSuccess(t *testing.T) {
	f := newFixture()
	doc := createdDoc(t, f)

	name, err := f.coord.AttachDocument(context.Background(), doc.ID, doc.OwnerID, []byte("receipt"), "receipt.jpg", "image/jpeg")
	require.NoError(t, err)
	assert.Contains(t, name, "receipt.jpg")
	assert.Contains(t, f.docs.byID[doc.ID].Attachments, name)

	path := artifact.DerivePath(doc.Kind, artifact.CategoryUploaded, doc.OwnerID, name)
	_, ok := f.artifacts.objects[path]
	assert.True(t, ok)
}

func TestAttachDocumentPatchFailureRollsBackUpload(t *testing.T) {
	f := newFixture()
	doc := createdDoc(t, f)
	f.docs.addAttErr = apperr.StoreUnavailable("update document", errors.New("db gone"))

	_, err := f.coord.AttachDocument(context.Background(), doc.ID, doc.OwnerID, []byte("receipt"), "receipt.jpg", "image/jpeg")
	require.Error(t, err)
	assert.Empty(t, f.docs.byID[doc.ID].Attachments)
	assert.Len(t, f.artifacts.objects, 1, "only the original invoice pdf remains")
}

func TestRemoveAttachment(t *testing.T) {
	f := newFixture()
	doc := createdDoc(t, f)
	name, err := f.coord.AttachDocument(context.Background(), doc.ID, doc.OwnerID, []byte("receipt"), "receipt.jpg", "image/jpeg")
	require.NoError(t, err)

	require.NoError(t, f.coord.RemoveAttachment(context.Background(), doc.ID, doc.OwnerID, name))
	assert.Empty(t, f.docs.byID[doc.ID].Attachments)

	path := artifact.DerivePath(doc.Kind, artifact.CategoryUploaded, doc.OwnerID, name)
	_, ok := f.artifacts.objects[path]
	assert.False(t, ok)
}

func TestRemoveAttachmentUnknownFilename(t *testing.T) {
	f := newFixture()
	doc := createdDoc(t, f)

	err := f.coord.RemoveAttachment(context.Background(), doc.ID, doc.OwnerID, "nope.jpg")
	assert.True(t, apperr.IsNotFound(err))
}

func TestRemoveAttachmentBlobDeleteFailureTolerated(t *testing.T) {
	f := newFixture()
	doc := createdDoc(t, f)
	name, err := f.coord.AttachDocument(context.Background(), doc.ID, doc.OwnerID, []byte("receipt"), "receipt.jpg", "image/jpeg")
	require.NoError(t, err)

	f.artifacts.deleteErr = errors.New("redis gone")
	require.NoError(t, f.coord.RemoveAttachment(context.Background(), doc.ID, doc.OwnerID, name))
	assert.Empty(t, f.docs.byID[doc.ID].Attachments, "record change wins even when blob cleanup fails")
}

func TestDownloadArtifactRoundTrip(t *testing.T) {
	f := newFixture()
	f.renderer.bytes = []byte("%PDF-1.7 content")
	doc := createdDoc(t, f)

	obj, filename, err := f.coord.DownloadArtifact(context.Background(), doc.ID, doc.OwnerID)
	require.NoError(t, err)
	assert.Equal(t, "INV-001.pdf", filename)
	assert.Equal(t, []byte("%PDF-1.7 content"), obj.Data)
	assert.Equal(t, "application/pdf", obj.ContentType)
}

func TestDownloadArtifactNoPointer(t *testing.T) {
	f := newFixture()
	f.renderer.err = errors.New("render broke")
	doc := invoiceDoc()
	_ = f.coord.CreateWithRender(context.Background(), doc)

	_, _, err := f.coord.DownloadArtifact(context.Background(), doc.ID, doc.OwnerID)
	assert.True(t, apperr.IsNotFound(err))
}

func TestDownloadArtifactWrongOwner(t *testing.T) {
	f := newFixture()
	doc := createdDoc(t, f)

	_, _, err := f.coord.DownloadArtifact(context.Background(), doc.ID, 999)
	assert.True(t, apperr.IsNotFound(err), "foreign documents read as absent, never forbidden")
}

func TestDownloadAttachmentUnknown(t *testing.T) {
	f := newFixture()
	doc := createdDoc(t, f)

	_, err := f.coord.DownloadAttachment(context.Background(), doc.ID, doc.OwnerID, "ghost.jpg")
	assert.True(t, apperr.IsNotFound(err))
}

func TestDeleteRemovesRecordAndArtifacts(t *testing.T) {
	f := newFixture()
	doc := createdDoc(t, f)
	att, err := f.coord.AttachDocument(context.Background(), doc.ID, doc.OwnerID, []byte("receipt"), "receipt.jpg", "image/jpeg")
	require.NoError(t, err)

	require.NoError(t, f.coord.Delete(context.Background(), doc.ID, doc.OwnerID))
	assert.NotContains(t, f.docs.byID, doc.ID)
	assert.Empty(t, f.artifacts.objects)
	assert.Contains(t, f.artifacts.deleted, "Invoices/10/INV-001.pdf")
	assert.Contains(t, f.artifacts.deleted, artifact.DerivePath(doc.Kind, artifact.CategoryUploaded, doc.OwnerID, att))
}

func TestDeleteBlobFailureTolerated(t *testing.T) {
	f := newFixture()
	doc := createdDoc(t, f)
	f.artifacts.deleteErr = errors.New("redis gone")

	require.NoError(t, f.coord.Delete(context.Background(), doc.ID, doc.OwnerID))
	assert.NotContains(t, f.docs.byID, doc.ID, "record delete is authoritative")
}

func TestDeleteRecordFailureKeepsArtifacts(t *testing.T) {
	f := newFixture()
	doc := createdDoc(t, f)
	f.docs.deleteErr = apperr.StoreUnavailable("delete document", errors.New("db gone"))

	err := f.coord.Delete(context.Background(), doc.ID, doc.OwnerID)
	require.Error(t, err)
	assert.Len(t, f.artifacts.objects, 1, "nothing is deleted from the blob store before the record goes")
	assert.Empty(t, f.artifacts.deleted)
}

func TestFreshNamesAreUnique(t *testing.T) {
	f := newFixture()
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		n := f.coord.freshName("doc.pdf")
		assert.False(t, seen[n], "fresh name collided: %s", n)
		seen[n] = true
		assert.Contains(t, n, "doc.pdf")
	}
}
