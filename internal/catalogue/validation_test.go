package catalogue

import (
	"errors"
	"fmt"
	"testing"

	"github.com/bigkaa/goartstore/tape-catalogue/internal/domain/model"
)

func strPtr(s string) *string { return &s }

func TestValidateCreateTape(t *testing.T) {
	valid := func() model.CreateTapeAttributes {
		return model.CreateTapeAttributes{
			VID:                "V00001",
			MediaType:          "LTO9",
			Vendor:             "IBM",
			LogicalLibraryName: "lib1",
			TapePoolName:       "pool1",
		}
	}

	tests := []struct {
		name      string
		modify    func(*model.CreateTapeAttributes)
		wantErr   error
		wantState model.TapeState
	}{
		{"по умолчанию ACTIVE", func(*model.CreateTapeAttributes) {}, nil, model.TapeStateActive},
		{"пустой VID", func(a *model.CreateTapeAttributes) { a.VID = "" }, ErrMissingValue, ""},
		{"пустой тип носителя", func(a *model.CreateTapeAttributes) { a.MediaType = "" }, ErrMissingValue, ""},
		{"пустой производитель", func(a *model.CreateTapeAttributes) { a.Vendor = "" }, ErrMissingValue, ""},
		{"пустая библиотека", func(a *model.CreateTapeAttributes) { a.LogicalLibraryName = "" }, ErrMissingValue, ""},
		{"пустой пул", func(a *model.CreateTapeAttributes) { a.TapePoolName = "" }, ErrMissingValue, ""},
		{"VID в нижнем регистре", func(a *model.CreateTapeAttributes) { a.VID = "v00001" }, ErrInvalidVID, ""},
		{"неизвестное состояние", func(a *model.CreateTapeAttributes) { a.State = "LOST" }, ErrNonExistentTapeState, ""},
		{
			"BROKEN без причины",
			func(a *model.CreateTapeAttributes) { a.State = model.TapeStateBroken },
			ErrEmptyReasonWhenStateNotActive, "",
		},
		{
			"BROKEN с пробельной причиной",
			func(a *model.CreateTapeAttributes) {
				a.State = model.TapeStateBroken
				a.StateReason = strPtr("   ")
			},
			ErrEmptyReasonWhenStateNotActive, "",
		},
		{
			"BROKEN с причиной",
			func(a *model.CreateTapeAttributes) {
				a.State = model.TapeStateBroken
				a.StateReason = strPtr("Tape broken")
			},
			nil, model.TapeStateBroken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := valid()
			tt.modify(&attrs)

			state, _, err := validateCreateTape(&attrs)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ошибка: %v, хотели %v", err, tt.wantErr)
				}
				if !IsUserError(err) {
					t.Errorf("ошибка %v должна быть пользовательской", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("неожиданная ошибка: %v", err)
			}
			if state != tt.wantState {
				t.Errorf("state = %q, хотели %q", state, tt.wantState)
			}
		})
	}
}

func TestCheckStateReason(t *testing.T) {
	// ACTIVE сбрасывает причину
	reason, err := checkStateReason(model.TapeStateActive, strPtr("было сломано"))
	if err != nil {
		t.Fatalf("ошибка: %v", err)
	}
	if reason != nil {
		t.Errorf("причина = %q, хотели nil", *reason)
	}

	// Причина очищается от пробелов
	reason, err = checkStateReason(model.TapeStateDisabled, strPtr("  maintenance "))
	if err != nil {
		t.Fatalf("ошибка: %v", err)
	}
	if reason == nil || *reason != "maintenance" {
		t.Errorf("причина = %v, хотели maintenance", reason)
	}

	for _, st := range model.AllTapeStates {
		if st == model.TapeStateActive {
			continue
		}
		if _, err := checkStateReason(st, nil); !errors.Is(err, ErrEmptyReasonWhenStateNotActive) {
			t.Errorf("checkStateReason(%s, nil) = %v, хотели ErrEmptyReasonWhenStateNotActive", st, err)
		}
	}
}

func TestCheckTapeSearchCriteria(t *testing.T) {
	empty := ""
	zero := int64(0)
	badState := model.TapeState("LOST")
	noIDs := []string{}
	state := model.TapeStateActive

	tests := []struct {
		name     string
		criteria model.TapeSearchCriteria
		wantErr  error
	}{
		{"без критериев", model.TapeSearchCriteria{}, nil},
		{"заданное состояние", model.TapeSearchCriteria{State: &state}, nil},
		{"пустой VID", model.TapeSearchCriteria{VID: &empty}, ErrEmptySearchCriterion},
		{"пустой пул", model.TapeSearchCriteria{TapePool: &empty}, ErrEmptySearchCriterion},
		{"пустая VO", model.TapeSearchCriteria{VO: &empty}, ErrEmptySearchCriterion},
		{"пустой purchaseOrder", model.TapeSearchCriteria{PurchaseOrder: &empty}, ErrEmptySearchCriterion},
		{"пустой список diskFileIds", model.TapeSearchCriteria{DiskFileIDs: &noIDs}, ErrEmptySearchCriterion},
		{"нулевая ёмкость", model.TapeSearchCriteria{CapacityInBytes: &zero}, ErrInvalidValue},
		{"неизвестное состояние", model.TapeSearchCriteria{State: &badState}, ErrNonExistentTapeState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkTapeSearchCriteria(tt.criteria)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ошибка: %v, хотели %v", err, tt.wantErr)
			}
		})
	}
}

func TestCheckArchiveFileSearchCriteria(t *testing.T) {
	empty := ""
	instance := "eosatlas"
	vid := "V00001"
	fseq := uint64(3)
	ids := []string{"0x1"}
	noIDs := []string{}

	tests := []struct {
		name     string
		criteria model.ArchiveFileSearchCriteria
		wantErr  error
	}{
		{"без критериев", model.ArchiveFileSearchCriteria{}, nil},
		{"vid и fSeq", model.ArchiveFileSearchCriteria{VID: &vid, FSeq: &fseq}, nil},
		{"инстанс и diskFileIds", model.ArchiveFileSearchCriteria{DiskInstance: &instance, DiskFileIDs: &ids}, nil},
		{"пустой инстанс", model.ArchiveFileSearchCriteria{DiskInstance: &empty}, ErrEmptySearchCriterion},
		{"пустой vid", model.ArchiveFileSearchCriteria{VID: &empty}, ErrEmptySearchCriterion},
		{"пустой список", model.ArchiveFileSearchCriteria{DiskInstance: &instance, DiskFileIDs: &noIDs}, ErrEmptySearchCriterion},
		{"diskFileIds без инстанса", model.ArchiveFileSearchCriteria{DiskFileIDs: &ids}, ErrMissingValue},
		{"fSeq без vid", model.ArchiveFileSearchCriteria{FSeq: &fseq}, ErrMissingValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkArchiveFileSearchCriteria(tt.criteria)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ошибка: %v, хотели %v", err, tt.wantErr)
			}
		})
	}
}

func TestCheckDeleteRequest(t *testing.T) {
	f := &model.ArchiveFile{
		ArchiveFileID: 1234,
		DiskInstance:  "eosatlas",
		DiskFileID:    "0x10",
		FileSize:      100,
		Checksums:     model.ChecksumBlob{{Type: model.ChecksumAdler32, Value: "0a0b0c0d"}},
	}
	size := uint64(100)
	otherSize := uint64(99)

	tests := []struct {
		name    string
		req     model.DeleteArchiveRequest
		wantErr error
	}{
		{"совпадает", model.DeleteArchiveRequest{DiskInstance: "eosatlas", DiskFileID: "0x10", FileSize: &size}, nil},
		{"только инстанс", model.DeleteArchiveRequest{DiskInstance: "eosatlas"}, nil},
		{"другой инстанс", model.DeleteArchiveRequest{DiskInstance: "eoscms"}, ErrDiskInstanceMismatch},
		{"другой diskFileId", model.DeleteArchiveRequest{DiskInstance: "eosatlas", DiskFileID: "0x11"}, ErrDeleteRequestMismatch},
		{"другой размер", model.DeleteArchiveRequest{DiskInstance: "eosatlas", FileSize: &otherSize}, ErrDeleteRequestMismatch},
		{
			"другая контрольная сумма",
			model.DeleteArchiveRequest{
				DiskInstance: "eosatlas",
				Checksums:    model.ChecksumBlob{{Type: model.ChecksumAdler32, Value: "ffffffff"}},
			},
			ErrDeleteRequestMismatch,
		},
		{
			"тип контрольной суммы отсутствует в каталоге",
			model.DeleteArchiveRequest{
				DiskInstance: "eosatlas",
				Checksums:    model.ChecksumBlob{{Type: model.ChecksumMD5, Value: "d41d8cd98f00b204e9800998ecf8427e"}},
			},
			ErrDeleteRequestMismatch,
		},
		{
			"контрольная сумма в другом регистре",
			model.DeleteArchiveRequest{
				DiskInstance: "eosatlas",
				Checksums:    model.ChecksumBlob{{Type: model.ChecksumAdler32, Value: "0A0B0C0D"}},
			},
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkDeleteRequest(f, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ошибка: %v, хотели %v", err, tt.wantErr)
			}
		})
	}
}

func TestSortWrittenBatch(t *testing.T) {
	events := []model.TapeFileWritten{
		{ArchiveFileID: 3, VID: "V1", FSeq: 3},
		{ArchiveFileID: 1, VID: "V1", FSeq: 1},
		{ArchiveFileID: 2, VID: "V1", FSeq: 2},
	}
	batch, err := sortWrittenBatch(events)
	if err != nil {
		t.Fatalf("ошибка: %v", err)
	}
	for i, ev := range batch {
		if ev.FSeq != uint64(i+1) {
			t.Errorf("batch[%d].FSeq = %d, хотели %d", i, ev.FSeq, i+1)
		}
	}
	if events[0].FSeq != 3 {
		t.Error("исходный срез не должен изменяться")
	}

	_, err = sortWrittenBatch([]model.TapeFileWritten{
		{ArchiveFileID: 1, VID: "V1", FSeq: 1},
		{ArchiveFileID: 2, VID: "V2", FSeq: 2},
	})
	if !errors.Is(err, ErrMultipleVIDsInBatch) {
		t.Errorf("ошибка: %v, хотели ErrMultipleVIDsInBatch", err)
	}

	_, err = sortWrittenBatch([]model.TapeFileWritten{
		{ArchiveFileID: 1, VID: "V1", FSeq: 1},
		{ArchiveFileID: 1, VID: "V1", FSeq: 2},
	})
	if !errors.Is(err, ErrDuplicateArchiveFile) {
		t.Errorf("ошибка: %v, хотели ErrDuplicateArchiveFile", err)
	}
	if IsUserError(err) {
		t.Error("повтор архивного файла в пачке — внутренняя ошибка")
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantUser     bool
		wantNotFound bool
		wantConflict bool
	}{
		{"несуществующая лента", fmt.Errorf("%w: V1", ErrNonExistentTape), true, true, false},
		{"непустая лента", ErrNonEmptyTape, true, false, true},
		{"лента уже существует", ErrTapeAlreadyExists, true, false, true},
		{"пустой критерий", ErrEmptySearchCriterion, true, false, false},
		{"нет политики", ErrNoMountPolicy, true, false, false},
		{"нарушение fSeq", ErrFSeqMismatch, false, false, false},
		{"ошибка БД", errors.New("connection reset"), false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserError(tt.err); got != tt.wantUser {
				t.Errorf("IsUserError() = %v, хотели %v", got, tt.wantUser)
			}
			if got := IsNotFound(tt.err); got != tt.wantNotFound {
				t.Errorf("IsNotFound() = %v, хотели %v", got, tt.wantNotFound)
			}
			if got := IsConflict(tt.err); got != tt.wantConflict {
				t.Errorf("IsConflict() = %v, хотели %v", got, tt.wantConflict)
			}
		})
	}
}

func TestWrapInternal(t *testing.T) {
	if err := wrapInternal("Op", nil); err != nil {
		t.Errorf("wrapInternal(nil) = %v", err)
	}

	userErr := fmt.Errorf("%w: V1", ErrNonExistentTape)
	if got := wrapInternal("DeleteTape", userErr); got != userErr {
		t.Errorf("пользовательская ошибка должна возвращаться без изменений: %v", got)
	}

	base := errors.New("deadlock detected")
	got := wrapInternal("ReclaimTape", base)
	if !errors.Is(got, base) {
		t.Errorf("обёрнутая ошибка должна содержать исходную: %v", got)
	}
	if got.Error() != "ReclaimTape: deadlock detected" {
		t.Errorf("сообщение = %q", got.Error())
	}
}

func TestOperationResult(t *testing.T) {
	if got := operationResult(nil); got != "ok" {
		t.Errorf("operationResult(nil) = %q", got)
	}
	if got := operationResult(ErrNonEmptyTape); got != "user_error" {
		t.Errorf("operationResult(user) = %q", got)
	}
	if got := operationResult(errors.New("boom")); got != "internal_error" {
		t.Errorf("operationResult(internal) = %q", got)
	}
}

func TestTapeStateClasses(t *testing.T) {
	for _, st := range model.AllTapeStates {
		reclaimable := st == model.TapeStateActive || st == model.TapeStateDisabled
		if st.Reclaimable() != reclaimable {
			t.Errorf("%s.Reclaimable() = %v", st, st.Reclaimable())
		}
		if st.Retrievable() && st.Transient() {
			t.Errorf("%s не может быть одновременно читаемым и временно недоступным", st)
		}
	}
	for _, st := range []model.TapeState{model.TapeStateBroken, model.TapeStateExported} {
		if st.Transient() {
			t.Errorf("%s — постоянная недоступность", st)
		}
	}
}

func TestPolicyCacheKey(t *testing.T) {
	a := policyCacheKey("eos", model.RequesterIdentity{Name: "ab", Group: "c"})
	b := policyCacheKey("eos", model.RequesterIdentity{Name: "a", Group: "bc"})
	if a == b {
		t.Errorf("ключи кэша для разных пользователей совпали: %q", a)
	}
}
