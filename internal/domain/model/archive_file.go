package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// ChecksumType — алгоритм контрольной суммы.
type ChecksumType string

const (
	ChecksumAdler32 ChecksumType = "ADLER32"
	ChecksumCRC32   ChecksumType = "CRC32"
	ChecksumCRC32C  ChecksumType = "CRC32C"
	ChecksumMD5     ChecksumType = "MD5"
	ChecksumSHA1    ChecksumType = "SHA1"
)

// Checksum — одна контрольная сумма файла. Value — шестнадцатеричная строка.
type Checksum struct {
	Type  ChecksumType
	Value string
}

// ChecksumBlob — набор контрольных сумм файла.
type ChecksumBlob []Checksum

// Adler32 возвращает значение ADLER32 или 0, если оно не задано.
func (b ChecksumBlob) Adler32() uint32 {
	for _, c := range b {
		if c.Type == ChecksumAdler32 {
			var v uint32
			if _, err := fmt.Sscanf(strings.TrimPrefix(strings.ToLower(c.Value), "0x"), "%x", &v); err == nil {
				return v
			}
		}
	}
	return 0
}

// Equal сравнивает наборы без учёта порядка и регистра значений.
func (b ChecksumBlob) Equal(other ChecksumBlob) bool {
	if len(b) != len(other) {
		return false
	}
	for _, c := range b {
		found := false
		for _, o := range other {
			if c.Type == o.Type && strings.EqualFold(c.Value, o.Value) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Validate проверяет соответствие набора ожидаемому: сумма каждого ожидаемого
// типа должна присутствовать в наборе и совпасть.
func (b ChecksumBlob) Validate(expected ChecksumBlob) error {
	for _, e := range expected {
		found := false
		for _, c := range b {
			if c.Type != e.Type {
				continue
			}
			if !strings.EqualFold(c.Value, e.Value) {
				return fmt.Errorf("контрольная сумма %s: %s, ожидалась %s", e.Type, c.Value, e.Value)
			}
			found = true
		}
		if !found {
			return fmt.Errorf("контрольная сумма %s отсутствует, ожидалась %s", e.Type, e.Value)
		}
	}
	return nil
}

// Поля сообщений checksum_blob:
//
//	message ChecksumBlob { repeated Checksum cs = 1; }
//	message Checksum     { Type type = 1; bytes value = 2; }
const (
	checksumBlobFieldCs protowire.Number = 1
	checksumFieldType   protowire.Number = 1
	checksumFieldValue  protowire.Number = 2
)

// Коды enum Checksum.Type; 0 (NONE) не используется.
var checksumTypeCodes = map[ChecksumType]uint64{
	ChecksumAdler32: 1,
	ChecksumCRC32:   2,
	ChecksumCRC32C:  3,
	ChecksumMD5:     4,
	ChecksumSHA1:    5,
}

// Valid сообщает, известен ли алгоритм.
func (t ChecksumType) Valid() bool {
	_, ok := checksumTypeCodes[t]
	return ok
}

func checksumTypeByCode(code uint64) (ChecksumType, bool) {
	for t, c := range checksumTypeCodes {
		if c == code {
			return t, true
		}
	}
	return "", false
}

// Serialize кодирует набор в checksum_blob (protobuf ChecksumBlob).
// Пустой набор кодируется как nil.
func (b ChecksumBlob) Serialize() ([]byte, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var out []byte
	for _, c := range b {
		code, ok := checksumTypeCodes[c.Type]
		if !ok {
			return nil, fmt.Errorf("неизвестный тип контрольной суммы %q", c.Type)
		}
		var msg []byte
		msg = protowire.AppendTag(msg, checksumFieldType, protowire.VarintType)
		msg = protowire.AppendVarint(msg, code)
		msg = protowire.AppendTag(msg, checksumFieldValue, protowire.BytesType)
		msg = protowire.AppendString(msg, c.Value)

		out = protowire.AppendTag(out, checksumBlobFieldCs, protowire.BytesType)
		out = protowire.AppendBytes(out, msg)
	}
	return out, nil
}

// DeserializeChecksumBlob декодирует checksum_blob. Неизвестные поля пропускаются.
func DeserializeChecksumBlob(data []byte) (ChecksumBlob, error) {
	var blob ChecksumBlob
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("checksum_blob: %w", protowire.ParseError(n))
		}
		data = data[n:]
		if num != checksumBlobFieldCs || typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("checksum_blob: %w", protowire.ParseError(n))
			}
			data = data[n:]
			continue
		}
		msg, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return nil, fmt.Errorf("checksum_blob: %w", protowire.ParseError(n))
		}
		data = data[n:]
		c, err := decodeChecksum(msg)
		if err != nil {
			return nil, err
		}
		blob = append(blob, c)
	}
	return blob, nil
}

func decodeChecksum(msg []byte) (Checksum, error) {
	var c Checksum
	for len(msg) > 0 {
		num, typ, n := protowire.ConsumeTag(msg)
		if n < 0 {
			return c, fmt.Errorf("контрольная сумма: %w", protowire.ParseError(n))
		}
		msg = msg[n:]
		switch {
		case num == checksumFieldType && typ == protowire.VarintType:
			code, n := protowire.ConsumeVarint(msg)
			if n < 0 {
				return c, fmt.Errorf("тип контрольной суммы: %w", protowire.ParseError(n))
			}
			msg = msg[n:]
			t, ok := checksumTypeByCode(code)
			if !ok {
				return c, fmt.Errorf("неизвестный код типа контрольной суммы %d", code)
			}
			c.Type = t
		case num == checksumFieldValue && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(msg)
			if n < 0 {
				return c, fmt.Errorf("значение контрольной суммы: %w", protowire.ParseError(n))
			}
			msg = msg[n:]
			c.Value = v
		default:
			n = protowire.ConsumeFieldValue(num, typ, msg)
			if n < 0 {
				return c, fmt.Errorf("контрольная сумма: %w", protowire.ParseError(n))
			}
			msg = msg[n:]
		}
	}
	if c.Type == "" {
		return c, errors.New("контрольная сумма без типа")
	}
	return c, nil
}

// ArchiveFile — архивный файл и его копии на лентах.
// Хранится в таблицах archive_file и tape_file.
type ArchiveFile struct {
	ArchiveFileID      uint64
	DiskInstance       string
	DiskFileID         string
	DiskFileOwnerUID   uint32
	DiskFileGID        uint32
	FileSize           uint64
	Checksums          ChecksumBlob
	StorageClass       string
	CollocationHint    *string
	CreationTime       time.Time
	ReconciliationTime time.Time
	// TapeFiles — копии, упорядоченные по номеру копии
	TapeFiles []TapeFile
}

// TapeFileByCopyNb возвращает копию с заданным номером.
func (f *ArchiveFile) TapeFileByCopyNb(copyNb uint8) (TapeFile, bool) {
	for _, tf := range f.TapeFiles {
		if tf.CopyNb == copyNb {
			return tf, true
		}
	}
	return TapeFile{}, false
}

// TapeFile — одна физическая копия архивного файла на ленте.
// Ключи: (VID, FSeq) и (ArchiveFileID, CopyNb).
type TapeFile struct {
	VID          string
	FSeq         uint64
	BlockID      uint64
	FileSize     uint64
	CopyNb       uint8
	CreationTime time.Time
}

// TapeFileWritten — событие записи копии файла на ленту.
type TapeFileWritten struct {
	ArchiveFileID    uint64
	DiskInstance     string
	DiskFileID       string
	DiskFileOwnerUID uint32
	DiskFileGID      uint32
	Size             uint64
	Checksums        ChecksumBlob
	StorageClassName string
	VID              string
	FSeq             uint64
	BlockID          uint64
	CopyNb           uint8
	TapeDrive        string
}

// DeleteArchiveRequest — запрос удаления архивного файла через журнал удалённых копий.
type DeleteArchiveRequest struct {
	Requester     RequesterIdentity
	ArchiveFileID uint64
	DiskInstance  string
	DiskFileID    string
	DiskFilePath  string
	// FileSize и Checksums необязательны; если заданы — сверяются с каталогом
	FileSize  *uint64
	Checksums ChecksumBlob
}

// ArchiveFileSearchCriteria — критерии выборки архивных файлов.
type ArchiveFileSearchCriteria struct {
	ArchiveFileID *uint64
	DiskInstance  *string
	DiskFileIDs   *[]string
	VID           *string
	FSeq          *uint64
	CopyNb        *uint8
}
