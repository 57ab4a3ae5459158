package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rc4"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/xdg-go/stringprep"

	"github.com/wudi/pdfmark/ir/raw"
)

// DataClass identifies the kind of payload being decrypted.
type DataClass int

const (
	DataClassStream DataClass = iota
	DataClassString
)

var (
	ErrInvalidPassword   = errors.New("invalid password")
	ErrUnsupportedFilter = errors.New("unsupported security handler")
)

// Handler decrypts objects of a Standard-security document.
type Handler interface {
	IsEncrypted() bool
	Authenticate(password string) error
	Decrypt(ref raw.ObjectRef, data []byte, class DataClass) ([]byte, error)
	Permissions() raw.Permissions
	EncryptMetadata() bool
}

type HandlerBuilder struct {
	encryptDict *raw.DictObj
	fileID      []byte
}

func (b *HandlerBuilder) WithEncryptDict(d *raw.DictObj) *HandlerBuilder {
	b.encryptDict = d
	return b
}
func (b *HandlerBuilder) WithFileID(id []byte) *HandlerBuilder { b.fileID = id; return b }

func (b *HandlerBuilder) Build() (Handler, error) {
	d := b.encryptDict
	if d == nil {
		return noEncryptionHandler{}, nil
	}
	if name, ok := d.Name("Filter"); ok && name != "Standard" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFilter, name)
	}
	v, _ := d.Int("V")
	if v == 0 {
		v = 1
	}
	r, ok := d.Int("R")
	if !ok {
		r = 2
	}
	if v > 5 || r > 6 {
		return nil, fmt.Errorf("%w: V=%d R=%d", ErrUnsupportedFilter, v, r)
	}
	keyLen := int64(40)
	if v >= 5 {
		keyLen = 256
	} else if n, ok := d.Int("Length"); ok && n > 0 {
		keyLen = n
	}
	if v == 4 && keyLen < 128 {
		keyLen = 128
	}
	if keyLen%8 != 0 || keyLen < 40 {
		return nil, fmt.Errorf("invalid key length %d", keyLen)
	}

	h := &standardHandler{
		v:           int(v),
		r:           int(r),
		keyBytes:    int(keyLen / 8),
		o:           stringVal(d, "O"),
		u:           stringVal(d, "U"),
		oe:          stringVal(d, "OE"),
		ue:          stringVal(d, "UE"),
		perms:       stringVal(d, "Perms"),
		fileID:      b.fileID,
		encryptMeta: true,
		streamAlgo:  algoRC4,
		stringAlgo:  algoRC4,
	}
	if p, ok := d.Int("P"); ok {
		h.p = int32(p)
	}
	if o, ok := d.Get("EncryptMetadata"); ok {
		if bv, ok := o.(raw.BoolObj); ok {
			h.encryptMeta = bv.V
		}
	}
	if v >= 4 {
		filters, err := parseCryptFilters(d)
		if err != nil {
			return nil, err
		}
		if h.streamAlgo, err = resolveCryptFilter(d, "StmF", filters); err != nil {
			return nil, err
		}
		if h.stringAlgo, err = resolveCryptFilter(d, "StrF", filters); err != nil {
			return nil, err
		}
	}
	return h, nil
}

type cryptAlgo int

const (
	algoNone cryptAlgo = iota
	algoRC4
	algoAES
)

type standardHandler struct {
	key         []byte
	v, r        int
	keyBytes    int
	o, u        []byte
	oe, ue      []byte
	perms       []byte
	p           int32
	fileID      []byte
	encryptMeta bool
	streamAlgo  cryptAlgo
	stringAlgo  cryptAlgo
}

func (h *standardHandler) IsEncrypted() bool     { return true }
func (h *standardHandler) EncryptMetadata() bool { return h.encryptMeta }

// Authenticate tries password as the user password and then as the owner password.
func (h *standardHandler) Authenticate(password string) error {
	if h.r >= 5 {
		prepped, err := stringprep.SASLprep.Prepare(password)
		if err != nil {
			return ErrInvalidPassword
		}
		return h.authenticateAES256([]byte(prepped))
	}
	pwd := []byte(password)
	if key, ok := h.checkUser(pwd); ok {
		h.key = key
		return nil
	}
	if key, ok := h.checkUser(h.recoverUserPassword(pwd)); ok {
		h.key = key
		return nil
	}
	return ErrInvalidPassword
}

func (h *standardHandler) Decrypt(ref raw.ObjectRef, data []byte, class DataClass) ([]byte, error) {
	if h.key == nil {
		if err := h.Authenticate(""); err != nil {
			return nil, err
		}
	}
	algo := h.streamAlgo
	if class == DataClassString {
		algo = h.stringAlgo
	}
	if algo == algoNone || len(data) == 0 {
		return data, nil
	}
	key := objectKey(h.key, ref, h.r, algo == algoAES)
	if algo == algoAES {
		return aesDecrypt(key, data)
	}
	return rc4Crypt(key, data), nil
}

func (h *standardHandler) Permissions() raw.Permissions {
	return raw.Permissions{
		Print:             h.p&0x4 != 0,
		Modify:            h.p&0x8 != 0,
		Copy:              h.p&0x10 != 0,
		ModifyAnnotations: h.p&0x20 != 0,
		FillForms:         h.p&0x100 != 0,
		ExtractAccessible: h.p&0x200 != 0,
		Assemble:          h.p&0x400 != 0,
		PrintHighQuality:  h.p&0x800 != 0,
	}
}

// checkUser computes the file key for a user password candidate and validates it against U.
func (h *standardHandler) checkUser(pwd []byte) ([]byte, bool) {
	key := deriveKey(pwd, h.o, h.p, h.fileID, h.keyBytes, h.r, h.encryptMeta)
	if len(h.u) < 16 {
		return nil, false
	}
	if h.r == 2 {
		return key, len(h.u) >= 32 && bytes.Equal(rc4Crypt(key, passwordPadding), h.u[:32])
	}
	sum := md5.Sum(append(append([]byte{}, passwordPadding...), h.fileID...))
	val := sum[:]
	for i := 0; i < 20; i++ {
		val = rc4Crypt(xorKey(key, byte(i)), val)
	}
	return key, bytes.Equal(val[:16], h.u[:16])
}

// recoverUserPassword decrypts O with the owner key, yielding the padded user password.
func (h *standardHandler) recoverUserPassword(owner []byte) []byte {
	sum := md5.Sum(padPassword(owner))
	digest := sum[:]
	if h.r >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5.Sum(digest)
			digest = sum[:]
		}
	}
	key := digest[:h.keyBytes]
	if h.r == 2 {
		return rc4Crypt(key, h.o)
	}
	out := append([]byte(nil), h.o...)
	for i := 19; i >= 0; i-- {
		out = rc4Crypt(xorKey(key, byte(i)), out)
	}
	return out
}

func (h *standardHandler) authenticateAES256(pwd []byte) error {
	if len(pwd) > 127 {
		pwd = pwd[:127]
	}
	if len(h.u) < 48 || len(h.o) < 48 || len(h.ue) < 32 || len(h.oe) < 32 {
		return errors.New("malformed AES-256 encryption dictionary")
	}
	var key []byte
	if bytes.Equal(h.hash(pwd, h.u[32:40], nil), h.u[:32]) {
		key = aesCBC(h.hash(pwd, h.u[40:48], nil), h.ue[:32])
	} else if bytes.Equal(h.hash(pwd, h.o[32:40], h.u[:48]), h.o[:32]) {
		key = aesCBC(h.hash(pwd, h.o[40:48], h.u[:48]), h.oe[:32])
	}
	if key == nil {
		return ErrInvalidPassword
	}
	h.key = key
	if len(h.perms) == 16 {
		block, err := aes.NewCipher(key)
		if err == nil {
			out := make([]byte, 16)
			block.Decrypt(out, h.perms)
			if string(out[9:12]) == "adb" {
				h.p = int32(binary.LittleEndian.Uint32(out[:4]))
			}
		}
	}
	return nil
}

// hash is the R5 SHA-256 digest or the R6 iterated hash (ISO 32000-2 algorithm 2.B).
func (h *standardHandler) hash(pwd, salt, udata []byte) []byte {
	sum := sha256.Sum256(concat(pwd, salt, udata))
	k := sum[:]
	if h.r == 5 {
		return k
	}
	for round := 0; ; {
		k1 := bytes.Repeat(concat(pwd, k, udata), 64)
		block, _ := aes.NewCipher(k[:16])
		e := make([]byte, len(k1))
		cipher.NewCBCEncrypter(block, k[16:32]).CryptBlocks(e, k1)
		mod := 0
		for _, b := range e[:16] {
			mod += int(b)
		}
		switch mod % 3 {
		case 0:
			s := sha256.Sum256(e)
			k = s[:]
		case 1:
			s := sha512.Sum384(e)
			k = s[:]
		default:
			s := sha512.Sum512(e)
			k = s[:]
		}
		round++
		if round >= 64 && int(e[len(e)-1]) <= round-32 {
			break
		}
	}
	return k[:32]
}

type noEncryptionHandler struct{}

func (noEncryptionHandler) IsEncrypted() bool          { return false }
func (noEncryptionHandler) Authenticate(string) error  { return nil }
func (noEncryptionHandler) EncryptMetadata() bool      { return false }
func (noEncryptionHandler) Decrypt(_ raw.ObjectRef, data []byte, _ DataClass) ([]byte, error) {
	return data, nil
}
func (noEncryptionHandler) Permissions() raw.Permissions {
	return raw.Permissions{Print: true, Modify: true, Copy: true, ModifyAnnotations: true,
		FillForms: true, ExtractAccessible: true, Assemble: true, PrintHighQuality: true}
}

// NoopHandler returns a reusable pass-through handler.
func NoopHandler() Handler { return noEncryptionHandler{} }

var passwordPadding = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

func padPassword(pwd []byte) []byte {
	padded := make([]byte, 32)
	n := copy(padded, pwd)
	copy(padded[n:], passwordPadding)
	return padded
}

// deriveKey computes the file key (ISO 32000-1 algorithm 2).
func deriveKey(pwd, owner []byte, p int32, fileID []byte, keyBytes, r int, encryptMeta bool) []byte {
	data := concat(padPassword(pwd), owner)
	var pBuf [4]byte
	binary.LittleEndian.PutUint32(pBuf[:], uint32(p))
	data = concat(data, pBuf[:], fileID)
	if r >= 4 && !encryptMeta {
		data = append(data, 0xff, 0xff, 0xff, 0xff)
	}
	sum := md5.Sum(data)
	key := sum[:]
	if r >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5.Sum(key[:keyBytes])
			key = sum[:]
		}
	}
	if r == 2 {
		keyBytes = 5
	}
	return key[:keyBytes]
}

func objectKey(fileKey []byte, ref raw.ObjectRef, r int, useAES bool) []byte {
	if r >= 5 {
		return fileKey
	}
	key := concat(fileKey, []byte{
		byte(ref.Num), byte(ref.Num >> 8), byte(ref.Num >> 16),
		byte(ref.Gen), byte(ref.Gen >> 8),
	})
	if useAES {
		key = append(key, 0x73, 0x41, 0x6C, 0x54) // "sAlT"
	}
	hash := md5.Sum(key)
	n := len(fileKey) + 5
	if n > 16 {
		n = 16
	}
	return hash[:n]
}

func parseCryptFilters(d *raw.DictObj) (map[string]cryptAlgo, error) {
	out := map[string]cryptAlgo{"Identity": algoNone}
	cfObj, ok := d.Get("CF")
	if !ok {
		return out, nil
	}
	cf, ok := cfObj.(*raw.DictObj)
	if !ok {
		return nil, errors.New("CF must be a dictionary")
	}
	for _, name := range cf.Keys() {
		entry, ok := cf.KV[name].(*raw.DictObj)
		if !ok {
			return nil, fmt.Errorf("crypt filter %s must be a dictionary", name)
		}
		cfm, _ := entry.Name("CFM")
		switch cfm {
		case "V2":
			out[name] = algoRC4
		case "AESV2", "AESV3":
			out[name] = algoAES
		case "None", "":
			out[name] = algoNone
		default:
			return nil, fmt.Errorf("%w: crypt filter method %s", ErrUnsupportedFilter, cfm)
		}
	}
	return out, nil
}

func resolveCryptFilter(d *raw.DictObj, key string, filters map[string]cryptAlgo) (cryptAlgo, error) {
	name, ok := d.Name(key)
	if !ok {
		name = "Identity"
	}
	algo, ok := filters[name]
	if !ok {
		return algoNone, fmt.Errorf("crypt filter %s not defined", name)
	}
	return algo, nil
}

func rc4Crypt(key, data []byte) []byte {
	out := make([]byte, len(data))
	c, err := rc4.NewCipher(key)
	if err != nil {
		return out
	}
	c.XORKeyStream(out, data)
	return out
}

func xorKey(key []byte, v byte) []byte {
	out := make([]byte, len(key))
	for i := range key {
		out[i] = key[i] ^ v
	}
	return out
}

// aesDecrypt handles the IV-prefixed, PKCS#5-padded layout used for strings and streams.
func aesDecrypt(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data) < aes.BlockSize {
		return nil, errors.New("aes ciphertext too short")
	}
	iv, ct := data[:aes.BlockSize], data[aes.BlockSize:]
	if len(ct)%aes.BlockSize != 0 {
		return nil, errors.New("aes ciphertext not multiple of blocksize")
	}
	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ct)
	if len(out) == 0 {
		return out, nil
	}
	pad := int(out[len(out)-1])
	if pad <= 0 || pad > aes.BlockSize || pad > len(out) {
		return nil, errors.New("invalid aes padding")
	}
	return out[:len(out)-pad], nil
}

// aesCBC decrypts whole blocks with a zero IV and no padding.
func aesCBC(key, data []byte) []byte {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, make([]byte, aes.BlockSize)).CryptBlocks(out, data)
	return out
}

func concat(parts ...[]byte) []byte {
	var n int
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func stringVal(d *raw.DictObj, key string) []byte {
	if v, ok := d.Get(key); ok {
		if s, ok := v.(raw.StringObj); ok {
			return s.Bytes
		}
	}
	return nil
}
