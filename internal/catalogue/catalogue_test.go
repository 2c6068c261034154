package catalogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/goartstore/tape-catalogue/internal/config"
	"github.com/bigkaa/goartstore/tape-catalogue/internal/database"
	"github.com/bigkaa/goartstore/tape-catalogue/internal/domain/model"
)

const (
	testCapacity     = uint64(18_000_000_000_000)
	testDiskInstance = "eosatlas"
)

var testAdmin = model.SecurityIdentity{Username: "admin", Host: "ctaadm01"}

// setupTestDB запускает PostgreSQL контейнер и применяет миграции.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("cta_test"),
		postgres.WithUsername("cta"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	t.Setenv("TC_DB_HOST", host)
	t.Setenv("TC_DB_PORT", port.Port())
	t.Setenv("TC_DB_NAME", "cta_test")
	t.Setenv("TC_DB_USER", "cta")
	t.Setenv("TC_DB_PASSWORD", "test-password")
	t.Setenv("TC_DB_SSL_MODE", "disable")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	if err := database.Migrate(cfg, testLogger()); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	pool, err := database.Connect(ctx, cfg, testLogger())
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// newTestCatalogue создаёт каталог с заполненными справочниками:
// VO atlas, тип носителя LTO9, библиотека lib1, пулы pool1 и pool2, классы хранения
// atlas_1copy (pool1) и atlas_2copies (pool1, pool2), политика монтирования
// default для пользователя default.
func newTestCatalogue(t *testing.T) *Catalogue {
	t.Helper()
	pool := setupTestDB(t)
	ctx := context.Background()

	c := New(pool, testLogger(), WithMountPolicyCache(16, time.Minute))
	ref := c.Reference()

	mustNoErr(t, "CreateVirtualOrganization", ref.CreateVirtualOrganization(ctx, testAdmin,
		model.VirtualOrganization{Name: "atlas", ReadMaxDrives: 2, WriteMaxDrives: 2}))
	mustNoErr(t, "CreateMediaType", ref.CreateMediaType(ctx, testAdmin,
		model.MediaType{Name: "LTO9", Cartridge: "LTO-9", CapacityInBytes: testCapacity}))
	mustNoErr(t, "CreateLogicalLibrary", ref.CreateLogicalLibrary(ctx, testAdmin,
		model.LogicalLibrary{Name: "lib1"}))
	mustNoErr(t, "CreateTapePool", ref.CreateTapePool(ctx, testAdmin,
		model.TapePool{Name: "pool1", VO: "atlas", NbPartialTapes: 2, Encryption: true}))
	mustNoErr(t, "CreateTapePool", ref.CreateTapePool(ctx, testAdmin,
		model.TapePool{Name: "pool2", VO: "atlas", NbPartialTapes: 1}))
	for _, sc := range []model.StorageClass{
		{Name: "atlas_1copy", NbCopies: 1, VO: "atlas"},
		{Name: "atlas_2copies", NbCopies: 2, VO: "atlas"},
	} {
		if _, err := ref.CreateStorageClass(ctx, testAdmin, sc); err != nil {
			t.Fatalf("CreateStorageClass(%s) ошибка: %v", sc.Name, err)
		}
	}
	for _, route := range []model.ArchiveRoute{
		{StorageClass: "atlas_1copy", CopyNb: 1, TapePool: "pool1"},
		{StorageClass: "atlas_2copies", CopyNb: 1, TapePool: "pool1"},
		{StorageClass: "atlas_2copies", CopyNb: 2, TapePool: "pool2"},
	} {
		mustNoErr(t, "CreateArchiveRoute", ref.CreateArchiveRoute(ctx, testAdmin, route))
	}
	mustNoErr(t, "CreateMountPolicy", ref.CreateMountPolicy(ctx, testAdmin,
		model.MountPolicy{Name: "default", ArchivePriority: 1, RetrievePriority: 1}))
	mustNoErr(t, "CreateRequesterMountRule", ref.CreateRequesterMountRule(ctx, testAdmin,
		model.RequesterMountRule{DiskInstance: testDiskInstance, Name: model.DefaultRequesterName, MountPolicy: "default"}))

	return c
}

func mustNoErr(t *testing.T, op string, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s() ошибка: %v", op, err)
	}
}

func createTape(t *testing.T, c *Catalogue, vid string) {
	t.Helper()
	mustNoErr(t, "CreateTape", c.Tapes().CreateTape(context.Background(), testAdmin, model.CreateTapeAttributes{
		VID:                vid,
		MediaType:          "LTO9",
		Vendor:             "IBM",
		LogicalLibraryName: "lib1",
		TapePoolName:       "pool1",
	}))
}

func getTape(t *testing.T, c *Catalogue, vid string) *model.Tape {
	t.Helper()
	tapes, err := c.Tapes().GetTapesByVID(context.Background(), []string{vid}, false)
	if err != nil {
		t.Fatalf("GetTapesByVID(%s) ошибка: %v", vid, err)
	}
	return tapes[vid]
}

func written(archiveFileID uint64, vid string, fseq uint64, copyNb uint8, size uint64) model.TapeFileWritten {
	return model.TapeFileWritten{
		ArchiveFileID:    archiveFileID,
		DiskInstance:     testDiskInstance,
		DiskFileID:       fmt.Sprintf("0x%x", archiveFileID),
		DiskFileOwnerUID: 1000,
		DiskFileGID:      1000,
		Size:             size,
		Checksums:        model.ChecksumBlob{{Type: model.ChecksumAdler32, Value: "0a0b0c0d"}},
		StorageClassName: "atlas_1copy",
		VID:              vid,
		FSeq:             fseq,
		BlockID:          fseq * 100,
		CopyNb:           copyNb,
		TapeDrive:        "drive0",
	}
}

func countRecycled(t *testing.T, c *Catalogue, vid string) []*model.FileRecycleLog {
	t.Helper()
	it, err := c.FileRecycleLog().GetFileRecycleLogItor(context.Background(),
		model.RecycleTapeFileSearchCriteria{VID: &vid})
	if err != nil {
		t.Fatalf("GetFileRecycleLogItor() ошибка: %v", err)
	}
	defer it.Close()

	var entries []*model.FileRecycleLog
	for it.Next() {
		entries = append(entries, it.Entry())
	}
	if err := it.Err(); err != nil {
		t.Fatalf("итерация журнала: %v", err)
	}
	return entries
}

// --- Тесты TapeCatalogue ---

func TestCreateTape(t *testing.T) {
	c := newTestCatalogue(t)
	ctx := context.Background()

	createTape(t, c, "V00001")

	tape := getTape(t, c, "V00001")
	if tape.State != model.TapeStateActive {
		t.Errorf("State = %s, хотели ACTIVE", tape.State)
	}
	if tape.StateModifiedBy != "admin@ctaadm01" {
		t.Errorf("StateModifiedBy = %q", tape.StateModifiedBy)
	}
	if tape.CapacityInBytes != int64(testCapacity) {
		t.Errorf("CapacityInBytes = %d, хотели %d", tape.CapacityInBytes, testCapacity)
	}
	if tape.VO != "atlas" {
		t.Errorf("VO = %q, хотели atlas", tape.VO)
	}

	tests := []struct {
		name    string
		attrs   model.CreateTapeAttributes
		wantErr error
	}{
		{
			"повтор VID",
			model.CreateTapeAttributes{VID: "V00001", MediaType: "LTO9", Vendor: "IBM", LogicalLibraryName: "lib1", TapePoolName: "pool1"},
			ErrTapeAlreadyExists,
		},
		{
			"нет библиотеки",
			model.CreateTapeAttributes{VID: "V00002", MediaType: "LTO9", Vendor: "IBM", LogicalLibraryName: "nolib", TapePoolName: "pool1"},
			ErrNonExistentLogicalLibrary,
		},
		{
			"нет пула",
			model.CreateTapeAttributes{VID: "V00002", MediaType: "LTO9", Vendor: "IBM", LogicalLibraryName: "lib1", TapePoolName: "nopool"},
			ErrNonExistentTapePool,
		},
		{
			"нет типа носителя",
			model.CreateTapeAttributes{VID: "V00002", MediaType: "LTO1", Vendor: "IBM", LogicalLibraryName: "lib1", TapePoolName: "pool1"},
			ErrNonExistentMediaType,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Tapes().CreateTape(ctx, testAdmin, tt.attrs)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ошибка: %v, хотели %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateTape_BrokenRequiresReason(t *testing.T) {
	c := newTestCatalogue(t)
	ctx := context.Background()

	attrs := model.CreateTapeAttributes{
		VID:                "V00001",
		MediaType:          "LTO9",
		Vendor:             "IBM",
		LogicalLibraryName: "lib1",
		TapePoolName:       "pool1",
		State:              model.TapeStateBroken,
	}
	if err := c.Tapes().CreateTape(ctx, testAdmin, attrs); !errors.Is(err, ErrEmptyReasonWhenStateNotActive) {
		t.Fatalf("ошибка: %v, хотели ErrEmptyReasonWhenStateNotActive", err)
	}

	attrs.StateReason = strPtr("Tape broken")
	mustNoErr(t, "CreateTape", c.Tapes().CreateTape(ctx, testAdmin, attrs))

	tape := getTape(t, c, "V00001")
	if tape.State != model.TapeStateBroken {
		t.Errorf("State = %s, хотели BROKEN", tape.State)
	}
	if tape.StateReason == nil || *tape.StateReason != "Tape broken" {
		t.Errorf("StateReason = %v, хотели Tape broken", tape.StateReason)
	}
}

func TestModifyTapeState(t *testing.T) {
	c := newTestCatalogue(t)
	ctx := context.Background()
	createTape(t, c, "V00001")

	mustNoErr(t, "ModifyTapeState", c.Tapes().ModifyTapeState(ctx, testAdmin, "V00001",
		model.TapeStateBroken, nil, strPtr("Broken tape")))
	tape := getTape(t, c, "V00001")
	if tape.State != model.TapeStateBroken {
		t.Errorf("State = %s, хотели BROKEN", tape.State)
	}
	if tape.StateReason == nil || *tape.StateReason != "Broken tape" {
		t.Errorf("StateReason = %v, хотели Broken tape", tape.StateReason)
	}

	mustNoErr(t, "ModifyTapeState", c.Tapes().ModifyTapeState(ctx, testAdmin, "V00001",
		model.TapeStateActive, nil, nil))
	tape = getTape(t, c, "V00001")
	if tape.State != model.TapeStateActive {
		t.Errorf("State = %s, хотели ACTIVE", tape.State)
	}
	if tape.StateReason != nil {
		t.Errorf("StateReason = %q, хотели nil", *tape.StateReason)
	}

	// Условие на предыдущее состояние
	prev := model.TapeStateDisabled
	err := c.Tapes().ModifyTapeState(ctx, testAdmin, "V00001", model.TapeStateRepacking, &prev, strPtr("repack"))
	if !errors.Is(err, ErrNonExistentTape) {
		t.Errorf("ошибка: %v, хотели ErrNonExistentTape при несовпадении состояния", err)
	}
	prev = model.TapeStateActive
	mustNoErr(t, "ModifyTapeState", c.Tapes().ModifyTapeState(ctx, testAdmin, "V00001",
		model.TapeStateRepacking, &prev, strPtr("repack")))

	if err := c.Tapes().ModifyTapeState(ctx, testAdmin, "NOTAPE", model.TapeStateActive, nil, nil); !errors.Is(err, ErrNonExistentTape) {
		t.Errorf("ошибка: %v, хотели ErrNonExistentTape", err)
	}
	if err := c.Tapes().ModifyTapeState(ctx, testAdmin, "V00001", "LOST", nil, strPtr("x")); !errors.Is(err, ErrNonExistentTapeState) {
		t.Errorf("ошибка: %v, хотели ErrNonExistentTapeState", err)
	}
	if err := c.Tapes().ModifyTapeState(ctx, testAdmin, "V00001", model.TapeStateDisabled, nil, nil); !errors.Is(err, ErrEmptyReasonWhenStateNotActive) {
		t.Errorf("ошибка: %v, хотели ErrEmptyReasonWhenStateNotActive", err)
	}
}

func TestSetTapeFull_Idempotent(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := New(pool, testLogger(), WithClock(func() time.Time { return fixed }))
	mustNoErr(t, "CreateVirtualOrganization", c.Reference().CreateVirtualOrganization(ctx, testAdmin, model.VirtualOrganization{Name: "atlas"}))
	mustNoErr(t, "CreateMediaType", c.Reference().CreateMediaType(ctx, testAdmin,
		model.MediaType{Name: "LTO9", Cartridge: "LTO-9", CapacityInBytes: testCapacity}))
	mustNoErr(t, "CreateLogicalLibrary", c.Reference().CreateLogicalLibrary(ctx, testAdmin, model.LogicalLibrary{Name: "lib1"}))
	mustNoErr(t, "CreateTapePool", c.Reference().CreateTapePool(ctx, testAdmin, model.TapePool{Name: "pool1", VO: "atlas"}))
	createTape(t, c, "V00001")

	mustNoErr(t, "SetTapeFull", c.Tapes().SetTapeFull(ctx, testAdmin, "V00001", true))
	once := getTape(t, c, "V00001")
	mustNoErr(t, "SetTapeFull", c.Tapes().SetTapeFull(ctx, testAdmin, "V00001", true))
	twice := getTape(t, c, "V00001")

	if !once.Full {
		t.Error("Full = false после SetTapeFull(true)")
	}
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("повторный SetTapeFull изменил ленту:\n%+v\n%+v", once, twice)
	}

	if err := c.Tapes().SetTapeFull(ctx, testAdmin, "NOTAPE", true); !errors.Is(err, ErrNonExistentTape) {
		t.Errorf("ошибка: %v, хотели ErrNonExistentTape", err)
	}
	if err := c.Tapes().NoSpaceLeftOnTape(ctx, "NOTAPE"); err == nil || IsUserError(err) {
		t.Errorf("NoSpaceLeftOnTape(NOTAPE) = %v, хотели внутреннюю ошибку", err)
	}
}

func TestTapeMountedForArchive_1024(t *testing.T) {
	c := newTestCatalogue(t)
	ctx := context.Background()
	createTape(t, c, "V00001")

	for i := 0; i < 1024; i++ {
		if err := c.Tapes().TapeMountedForArchive(ctx, "V00001", "drive7"); err != nil {
			t.Fatalf("TapeMountedForArchive() #%d ошибка: %v", i, err)
		}
	}
	mustNoErr(t, "TapeMountedForRetrieve", c.Tapes().TapeMountedForRetrieve(ctx, "V00001", "drive8"))

	tape := getTape(t, c, "V00001")
	if tape.WriteMountCount != 1024 {
		t.Errorf("WriteMountCount = %d, хотели 1024", tape.WriteMountCount)
	}
	if tape.LastWriteLog == nil || tape.LastWriteLog.Drive != "drive7" {
		t.Errorf("LastWriteLog = %+v, хотели drive7", tape.LastWriteLog)
	}
	if tape.ReadMountCount != 1 || tape.LastReadLog == nil || tape.LastReadLog.Drive != "drive8" {
		t.Errorf("ReadMountCount = %d, LastReadLog = %+v", tape.ReadMountCount, tape.LastReadLog)
	}
}

func TestGetTapesForWriting(t *testing.T) {
	c := newTestCatalogue(t)
	ctx := context.Background()
	createTape(t, c, "V00001")
	createTape(t, c, "V00002")
	createTape(t, c, "V00003")

	mustNoErr(t, "TapeLabelled", c.Tapes().TapeLabelled(ctx, "V00001", "drive0"))
	mustNoErr(t, "TapeLabelled", c.Tapes().TapeLabelled(ctx, "V00002", "drive0"))
	mustNoErr(t, "SetTapeFull", c.Tapes().SetTapeFull(ctx, testAdmin, "V00002", true))

	tapes, err := c.Tapes().GetTapesForWriting(ctx, "lib1")
	if err != nil {
		t.Fatalf("GetTapesForWriting() ошибка: %v", err)
	}
	if len(tapes) != 1 || tapes[0].VID != "V00001" {
		t.Fatalf("ленты для записи = %+v, хотели только V00001", tapes)
	}

	mustNoErr(t, "SetLogicalLibraryDisabled", c.Reference().SetLogicalLibraryDisabled(ctx, testAdmin, "lib1", true, strPtr("обслуживание")))
	tapes, err = c.Tapes().GetTapesForWriting(ctx, "lib1")
	if err != nil {
		t.Fatalf("GetTapesForWriting() ошибка: %v", err)
	}
	if len(tapes) != 0 {
		t.Errorf("отключённая библиотека вернула %d лент", len(tapes))
	}
}

func TestGetTapes(t *testing.T) {
	c := newTestCatalogue(t)
	ctx := context.Background()
	createTape(t, c, "V00002")
	createTape(t, c, "V00001")

	all, err := c.Tapes().GetTapes(ctx, model.TapeSearchCriteria{})
	if err != nil {
		t.Fatalf("GetTapes() ошибка: %v", err)
	}
	if len(all) != 2 || all[0].VID != "V00001" {
		t.Fatalf("GetTapes() = %d лент, первая %q", len(all), all[0].VID)
	}

	pool := "pool1"
	vo := "atlas"
	byPool, err := c.Tapes().GetTapes(ctx, model.TapeSearchCriteria{TapePool: &pool, VO: &vo})
	if err != nil {
		t.Fatalf("GetTapes() ошибка: %v", err)
	}
	if len(byPool) != 2 {
		t.Errorf("по пулу найдено %d лент, хотели 2", len(byPool))
	}

	missing := "nopool"
	if _, err := c.Tapes().GetTapes(ctx, model.TapeSearchCriteria{TapePool: &missing}); !errors.Is(err, ErrNonExistentTapePool) {
		t.Errorf("ошибка: %v, хотели ErrNonExistentTapePool", err)
	}

	// getTapesByVid: отсутствующие VID
	if _, err := c.Tapes().GetTapesByVID(ctx, []string{"V00001", "NOTAPE"}, false); !errors.Is(err, ErrNotAllTapesFound) {
		t.Errorf("ошибка: %v, хотели ErrNotAllTapesFound", err)
	}
	found, err := c.Tapes().GetTapesByVID(ctx, []string{"V00001", "NOTAPE"}, true)
	if err != nil {
		t.Fatalf("GetTapesByVID(ignoreMissing) ошибка: %v", err)
	}
	if len(found) != 1 {
		t.Errorf("найдено %d лент, хотели 1", len(found))
	}
}

func TestTapePoolCounters(t *testing.T) {
	c := newTestCatalogue(t)
	ctx := context.Background()

	createTape(t, c, "V1")
	tp, err := c.Reference().GetTapePool(ctx, "pool1")
	if err != nil {
		t.Fatalf("GetTapePool() ошибка: %v", err)
	}
	if tp.NbPartialTapes != 2 || !tp.Encryption {
		t.Errorf("пул: NbPartialTapes = %d, Encryption = %v", tp.NbPartialTapes, tp.Encryption)
	}
	if tp.NbTapes != 1 || tp.CapacityBytes != testCapacity || tp.DataBytes != 0 {
		t.Errorf("пул: NbTapes = %d, CapacityBytes = %d, DataBytes = %d", tp.NbTapes, tp.CapacityBytes, tp.DataBytes)
	}

	const size = uint64(1_000_000)
	mustNoErr(t, "FilesWrittenToTape", c.TapeFiles().FilesWrittenToTape(ctx,
		[]model.TapeFileWritten{written(1234, "V1", 1, 1, size)}))

	tp, err = c.Reference().GetTapePool(ctx, "pool1")
	if err != nil {
		t.Fatalf("GetTapePool() ошибка: %v", err)
	}
	if tp.DataBytes != size {
		t.Errorf("DataBytes = %d, хотели %d", tp.DataBytes, size)
	}
	if tp.NbPhysicalFiles != 1 {
		t.Errorf("NbPhysicalFiles = %d, хотели 1", tp.NbPhysicalFiles)
	}
}

// --- Тесты записи и перепаковки ---

func TestFilesWrittenToTape_RepackRoundTrip(t *testing.T) {
	c := newTestCatalogue(t)
	ctx := context.Background()
	createTape(t, c, "V1")

	mustNoErr(t, "FilesWrittenToTape", c.TapeFiles().FilesWrittenToTape(ctx,
		[]model.TapeFileWritten{written(1234, "V1", 1, 1, 100)}))
	mustNoErr(t, "FilesWrittenToTape", c.TapeFiles().FilesWrittenToTape(ctx,
		[]model.TapeFileWritten{written(1234, "V1", 2, 1, 100)}))

	f, err := c.ArchiveFiles().GetArchiveFileByID(ctx, 1234)
	if err != nil {
		t.Fatalf("GetArchiveFileByID() ошибка: %v", err)
	}
	if len(f.TapeFiles) != 1 || f.TapeFiles[0].FSeq != 2 || f.TapeFiles[0].VID != "V1" {
		t.Fatalf("копии = %+v, хотели одну V1/2", f.TapeFiles)
	}

	recycled := countRecycled(t, c, "V1")
	if len(recycled) != 1 {
		t.Fatalf("записей журнала = %d, хотели 1", len(recycled))
	}
	if recycled[0].FSeq != 1 || recycled[0].CopyNb != 1 || recycled[0].ReasonLog != model.RecycleReasonRepack {
		t.Errorf("запись журнала = %+v", recycled[0])
	}
	if recycled[0].ArchiveFileID != 1234 || recycled[0].StorageClassName != "atlas_1copy" {
		t.Errorf("атрибуты архивного файла не скопированы: %+v", recycled[0])
	}

	tape := getTape(t, c, "V1")
	if tape.LastFSeq != 2 || tape.NbMasterFiles != 2 || !tape.Dirty {
		t.Errorf("лента: LastFSeq = %d, NbMasterFiles = %d, Dirty = %v", tape.LastFSeq, tape.NbMasterFiles, tape.Dirty)
	}
}

func TestFilesWrittenToTape_Errors(t *testing.T) {
	c := newTestCatalogue(t)
	ctx := context.Background()
	createTape(t, c, "V1")

	// Пропуск fSeq
	err := c.TapeFiles().FilesWrittenToTape(ctx, []model.TapeFileWritten{written(1, "V1", 2, 1, 10)})
	if !errors.Is(err, ErrFSeqMismatch) {
		t.Errorf("ошибка: %v, хотели ErrFSeqMismatch", err)
	}
	if IsUserError(err) {
		t.Error("нарушение fSeq должно быть внутренней ошибкой")
	}

	// Ошибка откатывает всю пачку
	tape := getTape(t, c, "V1")
	if tape.LastFSeq != 0 || tape.DataOnTapeInBytes != 0 {
		t.Errorf("счётчики изменились после ошибки: LastFSeq = %d, Data = %d", tape.LastFSeq, tape.DataOnTapeInBytes)
	}

	// Несовпадение размера существующего архивного файла
	mustNoErr(t, "FilesWrittenToTape", c.TapeFiles().FilesWrittenToTape(ctx,
		[]model.TapeFileWritten{written(1, "V1", 1, 1, 10)}))
	ev := written(1, "V1", 2, 2, 11)
	if err := c.TapeFiles().FilesWrittenToTape(ctx, []model.TapeFileWritten{ev}); !errors.Is(err, ErrArchiveFileMismatch) {
		t.Errorf("ошибка: %v, хотели ErrArchiveFileMismatch", err)
	}

	ev = written(2, "V1", 2, 1, 10)
	ev.StorageClassName = "nosuchclass"
	if err := c.TapeFiles().FilesWrittenToTape(ctx, []model.TapeFileWritten{ev}); !errors.Is(err, ErrNonExistentStorageClass) {
		t.Errorf("ошибка: %v, хотели ErrNonExistentStorageClass", err)
	}
}

// --- Тесты удаления, reclaim и журнала удалённых копий ---

func TestDeleteTape_NonEmpty(t *testing.T) {
	c := newTestCatalogue(t)
	ctx := context.Background()
	createTape(t, c, "V1")
	createTape(t, c, "V2")

	// Пустая лента удаляется
	mustNoErr(t, "DeleteTape", c.Tapes().DeleteTape(ctx, "V2"))
	if err := c.Tapes().DeleteTape(ctx, "V2"); !errors.Is(err, ErrNonExistentTape) {
		t.Errorf("ошибка: %v, хотели ErrNonExistentTape", err)
	}

	mustNoErr(t, "FilesWrittenToTape", c.TapeFiles().FilesWrittenToTape(ctx,
		[]model.TapeFileWritten{written(1234, "V1", 1, 1, 100)}))

	// Действующая копия
	if err := c.Tapes().DeleteTape(ctx, "V1"); !errors.Is(err, ErrNonEmptyTape) {
		t.Fatalf("ошибка: %v, хотели ErrNonEmptyTape", err)
	}

	// Только запись в журнале удалённых копий
	mustNoErr(t, "MoveArchiveFileToRecycleLog", c.ArchiveFiles().MoveArchiveFileToRecycleLog(ctx, model.DeleteArchiveRequest{
		Requester:     model.RequesterIdentity{Name: "user1", Group: "atlas"},
		ArchiveFileID: 1234,
		DiskInstance:  testDiskInstance,
		DiskFilePath:  "/eos/atlas/file1",
	}))
	if err := c.Tapes().DeleteTape(ctx, "V1"); !errors.Is(err, ErrNonEmptyTape) {
		t.Fatalf("ошибка: %v, хотели ErrNonEmptyTape для ленты с записями журнала", err)
	}

	// После reclaim лента пуста
	mustNoErr(t, "SetTapeFull", c.Tapes().SetTapeFull(ctx, testAdmin, "V1", true))
	mustNoErr(t, "ReclaimTape", c.Tapes().ReclaimTape(ctx, testAdmin, "V1"))
	mustNoErr(t, "DeleteTape", c.Tapes().DeleteTape(ctx, "V1"))
}

func TestReclaimTape(t *testing.T) {
	c := newTestCatalogue(t)
	ctx := context.Background()
	createTape(t, c, "V1")

	mustNoErr(t, "FilesWrittenToTape", c.TapeFiles().FilesWrittenToTape(ctx,
		[]model.TapeFileWritten{written(1234, "V1", 1, 1, 100)}))

	// Не заполнена
	if err := c.Tapes().ReclaimTape(ctx, testAdmin, "V1"); !errors.Is(err, ErrTapeNotFull) {
		t.Errorf("ошибка: %v, хотели ErrTapeNotFull", err)
	}
	mustNoErr(t, "SetTapeFull", c.Tapes().SetTapeFull(ctx, testAdmin, "V1", true))

	// Есть действующие копии
	if err := c.Tapes().ReclaimTape(ctx, testAdmin, "V1"); !errors.Is(err, ErrTapeHasLiveFiles) {
		t.Errorf("ошибка: %v, хотели ErrTapeHasLiveFiles", err)
	}

	mustNoErr(t, "MoveArchiveFileToRecycleLog", c.ArchiveFiles().MoveArchiveFileToRecycleLog(ctx, model.DeleteArchiveRequest{
		Requester:     model.RequesterIdentity{Name: "user1", Group: "atlas"},
		ArchiveFileID: 1234,
		DiskInstance:  testDiskInstance,
		DiskFilePath:  "/eos/atlas/file1",
	}))
	if n := len(countRecycled(t, c, "V1")); n != 1 {
		t.Fatalf("записей журнала = %d, хотели 1", n)
	}

	mustNoErr(t, "ModifyTapeVerificationStatus", c.Tapes().ModifyTapeVerificationStatus(ctx, testAdmin, "V1", strPtr("verified")))
	mustNoErr(t, "ReclaimTape", c.Tapes().ReclaimTape(ctx, testAdmin, "V1"))

	tape := getTape(t, c, "V1")
	if tape.DataOnTapeInBytes != 0 || tape.LastFSeq != 0 || tape.Full || tape.NbMasterFiles != 0 {
		t.Errorf("после reclaim: Data = %d, LastFSeq = %d, Full = %v, NbMasterFiles = %d",
			tape.DataOnTapeInBytes, tape.LastFSeq, tape.Full, tape.NbMasterFiles)
	}
	if tape.VerificationStatus != nil {
		t.Errorf("VerificationStatus = %q, хотели nil", *tape.VerificationStatus)
	}
	if n := len(countRecycled(t, c, "V1")); n != 0 {
		t.Errorf("после reclaim осталось %d записей журнала", n)
	}

	if err := c.Tapes().ReclaimTape(ctx, testAdmin, "NOTAPE"); !errors.Is(err, ErrNonExistentTape) {
		t.Errorf("ошибка: %v, хотели ErrNonExistentTape", err)
	}
}

func TestReclaimTape_States(t *testing.T) {
	c := newTestCatalogue(t)
	ctx := context.Background()

	for i, st := range model.AllTapeStates {
		vid := "R0000" + string(rune('A'+i))
		attrs := model.CreateTapeAttributes{
			VID:                vid,
			MediaType:          "LTO9",
			Vendor:             "IBM",
			LogicalLibraryName: "lib1",
			TapePoolName:       "pool1",
			Full:               true,
			State:              st,
		}
		if st != model.TapeStateActive {
			attrs.StateReason = strPtr("test")
		}
		mustNoErr(t, "CreateTape", c.Tapes().CreateTape(ctx, testAdmin, attrs))

		err := c.Tapes().ReclaimTape(ctx, testAdmin, vid)
		if st.Reclaimable() {
			if err != nil {
				t.Errorf("ReclaimTape(%s) ошибка: %v", st, err)
			}
			continue
		}
		if !errors.Is(err, ErrTapeNotReclaimable) {
			t.Errorf("ReclaimTape(%s) = %v, хотели ErrTapeNotReclaimable", st, err)
		}
	}
}

func TestDeleteArchiveFile_Raw(t *testing.T) {
	c := newTestCatalogue(t)
	ctx := context.Background()
	createTape(t, c, "V1")
	mustNoErr(t, "SetTapeDirty", c.Tapes().SetTapeDirty(ctx, testAdmin, "V1", false))

	// Отсутствующий файл — не ошибка
	mustNoErr(t, "DeleteArchiveFile", c.ArchiveFiles().DeleteArchiveFile(ctx, testDiskInstance, 999))

	mustNoErr(t, "FilesWrittenToTape", c.TapeFiles().FilesWrittenToTape(ctx,
		[]model.TapeFileWritten{written(1234, "V1", 1, 1, 100)}))
	mustNoErr(t, "SetTapeDirty", c.Tapes().SetTapeDirty(ctx, testAdmin, "V1", false))

	if err := c.ArchiveFiles().DeleteArchiveFile(ctx, "eoscms", 1234); !errors.Is(err, ErrDiskInstanceMismatch) {
		t.Fatalf("ошибка: %v, хотели ErrDiskInstanceMismatch", err)
	}
	mustNoErr(t, "DeleteArchiveFile", c.ArchiveFiles().DeleteArchiveFile(ctx, testDiskInstance, 1234))

	if _, err := c.ArchiveFiles().GetArchiveFileByID(ctx, 1234); !errors.Is(err, ErrNonExistentArchiveFile) {
		t.Errorf("ошибка: %v, хотели ErrNonExistentArchiveFile", err)
	}
	if !getTape(t, c, "V1").Dirty {
		t.Error("лента должна быть помечена dirty")
	}
	if n := len(countRecycled(t, c, "V1")); n != 0 {
		t.Errorf("прямое удаление создало %d записей журнала", n)
	}
}

func TestMoveArchiveFileToRecycleLog_AndRestore(t *testing.T) {
	c := newTestCatalogue(t)
	ctx := context.Background()
	createTape(t, c, "V1")

	mustNoErr(t, "FilesWrittenToTape", c.TapeFiles().FilesWrittenToTape(ctx,
		[]model.TapeFileWritten{written(1234, "V1", 1, 1, 100)}))

	wrongSize := uint64(1)
	err := c.ArchiveFiles().MoveArchiveFileToRecycleLog(ctx, model.DeleteArchiveRequest{
		Requester:     model.RequesterIdentity{Name: "user1", Group: "atlas"},
		ArchiveFileID: 1234,
		DiskInstance:  testDiskInstance,
		DiskFilePath:  "/eos/atlas/file1",
		FileSize:      &wrongSize,
	})
	if !errors.Is(err, ErrDeleteRequestMismatch) {
		t.Fatalf("ошибка: %v, хотели ErrDeleteRequestMismatch", err)
	}

	mustNoErr(t, "MoveArchiveFileToRecycleLog", c.ArchiveFiles().MoveArchiveFileToRecycleLog(ctx, model.DeleteArchiveRequest{
		Requester:     model.RequesterIdentity{Name: "user1", Group: "atlas"},
		ArchiveFileID: 1234,
		DiskInstance:  testDiskInstance,
		DiskFilePath:  "/eos/atlas/file1",
	}))

	recycled := countRecycled(t, c, "V1")
	if len(recycled) != 1 {
		t.Fatalf("записей журнала = %d, хотели 1", len(recycled))
	}
	if recycled[0].DiskFilePath == nil || *recycled[0].DiskFilePath != "/eos/atlas/file1" {
		t.Errorf("DiskFilePath = %v", recycled[0].DiskFilePath)
	}
	if _, err := c.ArchiveFiles().GetArchiveFileByID(ctx, 1234); !errors.Is(err, ErrNonExistentArchiveFile) {
		t.Fatalf("архивный файл должен быть удалён: %v", err)
	}

	// Повторное удаление отсутствующего файла — не ошибка
	mustNoErr(t, "MoveArchiveFileToRecycleLog", c.ArchiveFiles().MoveArchiveFileToRecycleLog(ctx, model.DeleteArchiveRequest{
		ArchiveFileID: 1234,
		DiskInstance:  testDiskInstance,
		DiskFilePath:  "/eos/atlas/file1",
	}))

	vid := "V1"
	mustNoErr(t, "RestoreFileInRecycleLog", c.FileRecycleLog().RestoreFileInRecycleLog(ctx,
		model.RecycleTapeFileSearchCriteria{VID: &vid}, "0xrestored"))

	f, err := c.ArchiveFiles().GetArchiveFileByID(ctx, 1234)
	if err != nil {
		t.Fatalf("GetArchiveFileByID() ошибка: %v", err)
	}
	if f.DiskFileID != "0xrestored" {
		t.Errorf("DiskFileID = %q, хотели 0xrestored", f.DiskFileID)
	}
	if len(f.TapeFiles) != 1 || f.TapeFiles[0].FSeq != 1 {
		t.Errorf("копии = %+v", f.TapeFiles)
	}
	if len(f.Checksums) != 1 || f.Checksums[0].Value != "0a0b0c0d" {
		t.Errorf("Checksums = %+v", f.Checksums)
	}
	if n := len(countRecycled(t, c, "V1")); n != 0 {
		t.Errorf("после восстановления осталось %d записей журнала", n)
	}

	err = c.FileRecycleLog().RestoreFileInRecycleLog(ctx, model.RecycleTapeFileSearchCriteria{VID: &vid}, "")
	if !errors.Is(err, ErrNoRecycledFile) {
		t.Errorf("ошибка: %v, хотели ErrNoRecycledFile", err)
	}
	noTape := "NOTAPE"
	err = c.FileRecycleLog().RestoreFileInRecycleLog(ctx, model.RecycleTapeFileSearchCriteria{VID: &noTape}, "")
	if !errors.Is(err, ErrNonExistentTape) {
		t.Errorf("ошибка: %v, хотели ErrNonExistentTape", err)
	}
}

func TestDeleteTapeFileCopy(t *testing.T) {
	c := newTestCatalogue(t)
	ctx := context.Background()
	createTape(t, c, "V1")
	createTape(t, c, "V2")

	ev1 := written(1234, "V1", 1, 1, 100)
	ev1.StorageClassName = "atlas_2copies"
	ev2 := written(1234, "V2", 1, 2, 100)
	ev2.StorageClassName = "atlas_2copies"
	mustNoErr(t, "FilesWrittenToTape", c.TapeFiles().FilesWrittenToTape(ctx, []model.TapeFileWritten{ev1}))
	mustNoErr(t, "FilesWrittenToTape", c.TapeFiles().FilesWrittenToTape(ctx, []model.TapeFileWritten{ev2}))

	mustNoErr(t, "DeleteTapeFileCopy", c.TapeFiles().DeleteTapeFileCopy(ctx, 1234, 2, "лента повреждена"))
	if err := c.TapeFiles().DeleteTapeFileCopy(ctx, 1234, 1, "лента повреждена"); !errors.Is(err, ErrLastCopy) {
		t.Errorf("ошибка: %v, хотели ErrLastCopy", err)
	}
	if err := c.TapeFiles().DeleteTapeFileCopy(ctx, 1234, 2, "повтор"); !errors.Is(err, ErrNonExistentTapeFile) {
		t.Errorf("ошибка: %v, хотели ErrNonExistentTapeFile", err)
	}

	recycled := countRecycled(t, c, "V2")
	if len(recycled) != 1 || recycled[0].ReasonLog != "лента повреждена" {
		t.Errorf("журнал V2 = %+v", recycled)
	}
}

func TestGetArchiveFilesItor(t *testing.T) {
	c := newTestCatalogue(t)
	ctx := context.Background()
	createTape(t, c, "V1")

	batch := []model.TapeFileWritten{
		written(10, "V1", 1, 1, 100),
		written(11, "V1", 2, 1, 200),
		written(12, "V1", 3, 1, 300),
	}
	mustNoErr(t, "FilesWrittenToTape", c.TapeFiles().FilesWrittenToTape(ctx, batch))

	vid := "V1"
	it, err := c.ArchiveFiles().GetArchiveFilesItor(ctx, model.ArchiveFileSearchCriteria{VID: &vid})
	if err != nil {
		t.Fatalf("GetArchiveFilesItor() ошибка: %v", err)
	}
	defer it.Close()

	var ids []uint64
	for it.Next() {
		f := it.ArchiveFile()
		if len(f.TapeFiles) != 1 {
			t.Errorf("файл %d: копий %d, хотели 1", f.ArchiveFileID, len(f.TapeFiles))
		}
		ids = append(ids, f.ArchiveFileID)
	}
	if err := it.Err(); err != nil {
		t.Fatalf("итерация: %v", err)
	}
	if !reflect.DeepEqual(ids, []uint64{10, 11, 12}) {
		t.Errorf("ids = %v, хотели [10 11 12]", ids)
	}
	if it.Next() {
		t.Error("Next() после исчерпания должен возвращать false")
	}

	noTape := "NOTAPE"
	if _, err := c.ArchiveFiles().GetArchiveFilesItor(ctx, model.ArchiveFileSearchCriteria{VID: &noTape}); !errors.Is(err, ErrNonExistentTape) {
		t.Errorf("ошибка: %v, хотели ErrNonExistentTape", err)
	}
}

func TestCheckAndGetNextArchiveFileID(t *testing.T) {
	c := newTestCatalogue(t)
	ctx := context.Background()
	requester := model.RequesterIdentity{Name: "user1", Group: "atlas"}

	first, err := c.ArchiveFiles().CheckAndGetNextArchiveFileID(ctx, testDiskInstance, "atlas_1copy", requester)
	if err != nil {
		t.Fatalf("CheckAndGetNextArchiveFileID() ошибка: %v", err)
	}
	if first < 4294967296 {
		t.Errorf("первый ID = %d, хотели не меньше 2^32", first)
	}
	second, err := c.ArchiveFiles().CheckAndGetNextArchiveFileID(ctx, testDiskInstance, "atlas_1copy", requester)
	if err != nil {
		t.Fatalf("CheckAndGetNextArchiveFileID() ошибка: %v", err)
	}
	if second <= first {
		t.Errorf("ID не возрастает: %d, %d", first, second)
	}

	if _, err := c.ArchiveFiles().CheckAndGetNextArchiveFileID(ctx, testDiskInstance, "nosuchclass", requester); !errors.Is(err, ErrNonExistentStorageClass) {
		t.Errorf("ошибка: %v, хотели ErrNonExistentStorageClass", err)
	}

	// Маршруты архивации: нет ни одного, затем не на все копии
	ref := c.Reference()
	if _, err := ref.CreateStorageClass(ctx, testAdmin, model.StorageClass{Name: "atlas_3copies", NbCopies: 3, VO: "atlas"}); err != nil {
		t.Fatalf("CreateStorageClass() ошибка: %v", err)
	}
	if _, err := c.ArchiveFiles().CheckAndGetNextArchiveFileID(ctx, testDiskInstance, "atlas_3copies", requester); !errors.Is(err, ErrNoArchiveRoutes) {
		t.Errorf("без маршрутов: ошибка %v, хотели ErrNoArchiveRoutes", err)
	}
	mustNoErr(t, "CreateArchiveRoute", ref.CreateArchiveRoute(ctx, testAdmin,
		model.ArchiveRoute{StorageClass: "atlas_3copies", CopyNb: 1, TapePool: "pool1"}))
	if _, err := c.ArchiveFiles().CheckAndGetNextArchiveFileID(ctx, testDiskInstance, "atlas_3copies", requester); !errors.Is(err, ErrArchiveRoutesIncomplete) {
		t.Errorf("один маршрут из трёх: ошибка %v, хотели ErrArchiveRoutesIncomplete", err)
	}
	if _, err := c.ArchiveFiles().CheckAndGetNextArchiveFileID(ctx, "eoscms", "atlas_1copy", requester); !errors.Is(err, ErrNoMountPolicy) {
		t.Errorf("ошибка: %v, хотели ErrNoMountPolicy", err)
	}

	// Правило группы с именем default не считается правилом по умолчанию
	mustNoErr(t, "CreateRequesterGroupMountRule", ref.CreateRequesterGroupMountRule(ctx, testAdmin,
		model.RequesterGroupMountRule{DiskInstance: "eoscms", Group: "default", MountPolicy: "default"}))
	if _, err := c.ArchiveFiles().CheckAndGetNextArchiveFileID(ctx, "eoscms", "atlas_1copy", requester); !errors.Is(err, ErrNoMountPolicy) {
		t.Errorf("группа default: ошибка %v, хотели ErrNoMountPolicy", err)
	}

	mustNoErr(t, "CreateRequesterMountRule", ref.CreateRequesterMountRule(ctx, testAdmin,
		model.RequesterMountRule{DiskInstance: "eoscms", Name: model.DefaultRequesterName, MountPolicy: "default"}))
	if _, err := c.ArchiveFiles().CheckAndGetNextArchiveFileID(ctx, "eoscms", "atlas_1copy", requester); err != nil {
		t.Errorf("пользователь default: ошибка %v", err)
	}
}

// --- Тесты подготовки чтения ---

func TestPrepareToRetrieveFile_MountPolicy(t *testing.T) {
	c := newTestCatalogue(t)
	ctx := context.Background()
	ref := c.Reference()
	createTape(t, c, "V1")
	mustNoErr(t, "FilesWrittenToTape", c.TapeFiles().FilesWrittenToTape(ctx,
		[]model.TapeFileWritten{written(1234, "V1", 1, 1, 100)}))

	for _, mp := range []model.MountPolicy{
		{Name: "user_policy", RetrievePriority: 10},
		{Name: "group_policy", RetrievePriority: 20},
		{Name: "activity_low", RetrievePriority: 30},
		{Name: "activity_high", RetrievePriority: 40},
		{Name: "explicit", RetrievePriority: 50},
	} {
		mustNoErr(t, "CreateMountPolicy", ref.CreateMountPolicy(ctx, testAdmin, mp))
	}
	mustNoErr(t, "CreateRequesterMountRule", ref.CreateRequesterMountRule(ctx, testAdmin,
		model.RequesterMountRule{DiskInstance: testDiskInstance, Name: "alice", MountPolicy: "user_policy"}))
	mustNoErr(t, "CreateRequesterGroupMountRule", ref.CreateRequesterGroupMountRule(ctx, testAdmin,
		model.RequesterGroupMountRule{DiskInstance: testDiskInstance, Group: "atlas", MountPolicy: "group_policy"}))
	mustNoErr(t, "CreateRequesterActivityMountRule", ref.CreateRequesterActivityMountRule(ctx, testAdmin,
		model.RequesterActivityMountRule{DiskInstance: testDiskInstance, Name: "alice", ActivityRegex: "^T0", MountPolicy: "activity_low"}))
	mustNoErr(t, "CreateRequesterActivityMountRule", ref.CreateRequesterActivityMountRule(ctx, testAdmin,
		model.RequesterActivityMountRule{DiskInstance: testDiskInstance, Name: "alice", ActivityRegex: "^T0Reco", MountPolicy: "activity_high"}))

	if err := ref.CreateRequesterActivityMountRule(ctx, testAdmin, model.RequesterActivityMountRule{
		DiskInstance: testDiskInstance, Name: "alice", ActivityRegex: "([", MountPolicy: "activity_low",
	}); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("ошибка: %v, хотели ErrInvalidValue для некорректного выражения", err)
	}
	if err := ref.CreateRequesterMountRule(ctx, testAdmin, model.RequesterMountRule{
		DiskInstance: testDiskInstance, Name: "bob", MountPolicy: "nosuchpolicy",
	}); !errors.Is(err, ErrNonExistentMountPolicy) {
		t.Errorf("ошибка: %v, хотели ErrNonExistentMountPolicy", err)
	}

	tests := []struct {
		name       string
		requester  model.RequesterIdentity
		activity   *string
		policyName *string
		want       string
	}{
		{"явная политика", model.RequesterIdentity{Name: "alice", Group: "atlas"}, strPtr("T0Reco"), strPtr("explicit"), "explicit"},
		{"неизвестная явная политика", model.RequesterIdentity{Name: "alice", Group: "atlas"}, nil, strPtr("nosuch"), "user_policy"},
		{"активность с наибольшим приоритетом", model.RequesterIdentity{Name: "alice", Group: "atlas"}, strPtr("T0Reco_x"), nil, "activity_high"},
		{"активность", model.RequesterIdentity{Name: "alice", Group: "atlas"}, strPtr("T0Skim"), nil, "activity_low"},
		{"активность без правила", model.RequesterIdentity{Name: "alice", Group: "atlas"}, strPtr("Analysis"), nil, "user_policy"},
		{"пользователь", model.RequesterIdentity{Name: "alice", Group: "atlas"}, nil, nil, "user_policy"},
		{"группа", model.RequesterIdentity{Name: "bob", Group: "atlas"}, nil, nil, "group_policy"},
		{"пользователь default", model.RequesterIdentity{Name: "carol", Group: "cms"}, nil, nil, "default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			criteria, err := c.TapeFiles().PrepareToRetrieveFile(ctx, testDiskInstance, 1234, tt.requester, tt.activity, tt.policyName)
			if err != nil {
				t.Fatalf("PrepareToRetrieveFile() ошибка: %v", err)
			}
			if criteria.MountPolicy.Name != tt.want {
				t.Errorf("политика = %q, хотели %q", criteria.MountPolicy.Name, tt.want)
			}
			if criteria.ArchiveFile.ArchiveFileID != 1234 || len(criteria.ArchiveFile.TapeFiles) != 1 {
				t.Errorf("архивный файл = %+v", criteria.ArchiveFile)
			}
		})
	}

	if _, err := c.TapeFiles().PrepareToRetrieveFile(ctx, "eoscms", 1234,
		model.RequesterIdentity{Name: "alice", Group: "atlas"}, nil, nil); !errors.Is(err, ErrDiskInstanceMismatch) {
		t.Errorf("ошибка: %v, хотели ErrDiskInstanceMismatch", err)
	}
	if _, err := c.TapeFiles().PrepareToRetrieveFile(ctx, testDiskInstance, 999,
		model.RequesterIdentity{Name: "alice", Group: "atlas"}, nil, nil); !errors.Is(err, ErrNonExistentArchiveFile) {
		t.Errorf("ошибка: %v, хотели ErrNonExistentArchiveFile", err)
	}
}

func TestPrepareToRetrieveFile_Unavailable(t *testing.T) {
	c := newTestCatalogue(t)
	ctx := context.Background()
	createTape(t, c, "V1")
	mustNoErr(t, "FilesWrittenToTape", c.TapeFiles().FilesWrittenToTape(ctx,
		[]model.TapeFileWritten{written(1234, "V1", 1, 1, 100)}))
	requester := model.RequesterIdentity{Name: "alice", Group: "atlas"}

	// DISABLED — копия читаема
	mustNoErr(t, "ModifyTapeState", c.Tapes().ModifyTapeState(ctx, testAdmin, "V1", model.TapeStateDisabled, nil, strPtr("maintenance")))
	if _, err := c.TapeFiles().PrepareToRetrieveFile(ctx, testDiskInstance, 1234, requester, nil, nil); err != nil {
		t.Errorf("чтение с DISABLED ленты: %v", err)
	}

	for _, st := range []model.TapeState{model.TapeStateRepacking, model.TapeStateBroken, model.TapeStateExported} {
		mustNoErr(t, "ModifyTapeState", c.Tapes().ModifyTapeState(ctx, testAdmin, "V1", st, nil, strPtr("test")))
		_, err := c.TapeFiles().PrepareToRetrieveFile(ctx, testDiskInstance, 1234, requester, nil, nil)
		if !errors.Is(err, ErrFileUnavailable) {
			t.Errorf("состояние %s: ошибка %v, хотели ErrFileUnavailable", st, err)
		}
	}
}

func TestModifyTapeOptionalFields(t *testing.T) {
	c := newTestCatalogue(t)
	ctx := context.Background()
	createTape(t, c, "V1")

	mustNoErr(t, "ModifyTapeComment", c.Tapes().ModifyTapeComment(ctx, testAdmin, "V1", strPtr("ремонт привода")))
	mustNoErr(t, "ModifyTapeEncryptionKeyName", c.Tapes().ModifyTapeEncryptionKeyName(ctx, testAdmin, "V1", strPtr("key-2026")))

	tape := getTape(t, c, "V1")
	if tape.Comment == nil || *tape.Comment != "ремонт привода" {
		t.Errorf("Comment = %v", tape.Comment)
	}
	if tape.EncryptionKeyName == nil || *tape.EncryptionKeyName != "key-2026" {
		t.Errorf("EncryptionKeyName = %v", tape.EncryptionKeyName)
	}

	// Пустая строка сбрасывает значение
	mustNoErr(t, "ModifyTapeComment", c.Tapes().ModifyTapeComment(ctx, testAdmin, "V1", strPtr("  ")))
	if tape := getTape(t, c, "V1"); tape.Comment != nil {
		t.Errorf("Comment = %q, хотели nil", *tape.Comment)
	}

	if err := c.Tapes().ModifyTapeComment(ctx, testAdmin, "NOTAPE", strPtr("x")); !errors.Is(err, ErrNonExistentTape) {
		t.Errorf("ошибка: %v, хотели ErrNonExistentTape", err)
	}
}

func TestUpdateDiskFileID(t *testing.T) {
	c := newTestCatalogue(t)
	ctx := context.Background()
	createTape(t, c, "V1")
	mustNoErr(t, "FilesWrittenToTape", c.TapeFiles().FilesWrittenToTape(ctx,
		[]model.TapeFileWritten{written(77, "V1", 1, 1, 100)}))

	mustNoErr(t, "UpdateDiskFileID", c.ArchiveFiles().UpdateDiskFileID(ctx, 77, testDiskInstance, "0xmoved"))
	f, err := c.ArchiveFiles().GetArchiveFileByID(ctx, 77)
	if err != nil {
		t.Fatalf("GetArchiveFileByID() ошибка: %v", err)
	}
	if f.DiskFileID != "0xmoved" {
		t.Errorf("DiskFileID = %q, хотели 0xmoved", f.DiskFileID)
	}

	if err := c.ArchiveFiles().UpdateDiskFileID(ctx, 77, "eoscms", "0xother"); !errors.Is(err, ErrNonExistentArchiveFile) {
		t.Errorf("чужой инстанс: ошибка %v, хотели ErrNonExistentArchiveFile", err)
	}
	if err := c.ArchiveFiles().UpdateDiskFileID(ctx, 77, testDiskInstance, ""); !errors.Is(err, ErrUserError) {
		t.Errorf("пустой diskFileId: ошибка %v, хотели пользовательскую", err)
	}
}

func TestDeleteFileFromRecycleLog(t *testing.T) {
	c := newTestCatalogue(t)
	ctx := context.Background()
	createTape(t, c, "V1")
	mustNoErr(t, "FilesWrittenToTape", c.TapeFiles().FilesWrittenToTape(ctx, []model.TapeFileWritten{
		written(10, "V1", 1, 1, 100),
		written(11, "V1", 2, 1, 100),
	}))
	for _, id := range []uint64{10, 11} {
		mustNoErr(t, "MoveArchiveFileToRecycleLog", c.ArchiveFiles().MoveArchiveFileToRecycleLog(ctx, model.DeleteArchiveRequest{
			Requester:     model.RequesterIdentity{Name: "user1", Group: "atlas"},
			ArchiveFileID: id,
			DiskInstance:  testDiskInstance,
			DiskFilePath:  fmt.Sprintf("/eos/atlas/file%d", id),
		}))
	}

	vid := "V1"
	if err := c.FileRecycleLog().DeleteFileFromRecycleLog(ctx, testAdmin,
		model.RecycleTapeFileSearchCriteria{VID: &vid}); !errors.Is(err, ErrAmbiguousRecycledFile) {
		t.Fatalf("ошибка: %v, хотели ErrAmbiguousRecycledFile", err)
	}

	id := uint64(10)
	mustNoErr(t, "DeleteFileFromRecycleLog", c.FileRecycleLog().DeleteFileFromRecycleLog(ctx, testAdmin,
		model.RecycleTapeFileSearchCriteria{VID: &vid, ArchiveFileID: &id}))

	left := countRecycled(t, c, "V1")
	if len(left) != 1 || left[0].ArchiveFileID != 11 {
		t.Fatalf("осталось записей: %+v", left)
	}

	if err := c.FileRecycleLog().DeleteFileFromRecycleLog(ctx, testAdmin,
		model.RecycleTapeFileSearchCriteria{VID: &vid, ArchiveFileID: &id}); !errors.Is(err, ErrNoRecycledFile) {
		t.Errorf("повторное удаление: ошибка %v, хотели ErrNoRecycledFile", err)
	}
}

func TestArchiveRoutes(t *testing.T) {
	c := newTestCatalogue(t)
	ctx := context.Background()
	ref := c.Reference()

	routes, err := ref.GetArchiveRoutes(ctx)
	if err != nil {
		t.Fatalf("GetArchiveRoutes() ошибка: %v", err)
	}
	if len(routes) != 3 {
		t.Fatalf("маршрутов = %d, хотели 3", len(routes))
	}
	if routes[2].StorageClass != "atlas_2copies" || routes[2].CopyNb != 2 || routes[2].TapePool != "pool2" {
		t.Errorf("третий маршрут = %+v", routes[2])
	}
	if routes[0].CreationLog.Username != testAdmin.Username {
		t.Errorf("CreationLog = %+v", routes[0].CreationLog)
	}

	tests := []struct {
		name    string
		route   model.ArchiveRoute
		wantErr error
	}{
		{"дубликат", model.ArchiveRoute{StorageClass: "atlas_1copy", CopyNb: 1, TapePool: "pool2"}, ErrAlreadyExists},
		{"копия вне класса", model.ArchiveRoute{StorageClass: "atlas_1copy", CopyNb: 2, TapePool: "pool2"}, ErrInvalidValue},
		{"нулевая копия", model.ArchiveRoute{StorageClass: "atlas_1copy", CopyNb: 0, TapePool: "pool2"}, ErrInvalidValue},
		{"неизвестный класс", model.ArchiveRoute{StorageClass: "nosuch", CopyNb: 1, TapePool: "pool1"}, ErrNonExistentStorageClass},
		{"неизвестный пул", model.ArchiveRoute{StorageClass: "atlas_2copies", CopyNb: 2, TapePool: "nosuch"}, ErrNonExistentTapePool},
		{"без пула", model.ArchiveRoute{StorageClass: "atlas_1copy", CopyNb: 1}, ErrMissingValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ref.CreateArchiveRoute(ctx, testAdmin, tt.route)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ошибка: %v, хотели %v", err, tt.wantErr)
			}
		})
	}

	mustNoErr(t, "DeleteArchiveRoute", ref.DeleteArchiveRoute(ctx, testAdmin, "atlas_2copies", 2))
	if err := ref.DeleteArchiveRoute(ctx, testAdmin, "atlas_2copies", 2); !errors.Is(err, ErrNonExistentArchiveRoute) {
		t.Errorf("повторное удаление: ошибка %v, хотели ErrNonExistentArchiveRoute", err)
	}
	requester := model.RequesterIdentity{Name: "user1", Group: "atlas"}
	if _, err := c.ArchiveFiles().CheckAndGetNextArchiveFileID(ctx, testDiskInstance, "atlas_2copies", requester); !errors.Is(err, ErrArchiveRoutesIncomplete) {
		t.Errorf("после удаления маршрута: ошибка %v, хотели ErrArchiveRoutesIncomplete", err)
	}

	// Пул для удалённой копии существует, но другой пул уже занят копией 1
	if err := ref.CreateArchiveRoute(ctx, testAdmin,
		model.ArchiveRoute{StorageClass: "atlas_2copies", CopyNb: 2, TapePool: "pool1"}); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("две копии в один пул: ошибка %v, хотели ErrAlreadyExists", err)
	}
}
