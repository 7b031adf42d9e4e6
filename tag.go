// go-m24sr
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-m24sr.
//
// go-m24sr is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-m24sr is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-m24sr; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package m24sr

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ZaparooProject/go-m24sr/internal/frame"
	"github.com/hsanjuan/go-ndef"
)

// ndefLengthBytes is the size of the NLEN field heading the NDEF file
const ndefLengthBytes = 2

// Tag runs Type 4 tag commands on an M24SR through a Session. Every public
// operation selects what it needs, runs its commands and releases the I2C
// session with DESELECT, so an RF reader can reach the tag in between.
//
// Tag serializes its operations; it is safe for concurrent use as long as
// nothing else uses the underlying Session.
type Tag struct {
	session *Session
	mu      sync.Mutex
}

// NewTag creates a Tag on top of session
func NewTag(session *Session) *Tag {
	return &Tag{session: session}
}

// Session returns the underlying session
func (t *Tag) Session() *Session {
	return t.session
}

// ReadNDEFLength returns the NLEN field of the NDEF file
func (t *Tag) ReadNDEFLength(ctx context.Context) (uint16, error) {
	var n uint16
	err := t.run(ctx, "read NDEF length", func(ctx context.Context) error {
		if err := t.selectNDEFFile(ctx); err != nil {
			return err
		}
		var err error
		n, err = t.readLength(ctx)
		return err
	})
	return n, err
}

// ReadNDEFBytes returns the raw NDEF message stored on the tag. It returns
// ErrNoNDEF when the NDEF file is empty.
func (t *Tag) ReadNDEFBytes(ctx context.Context) ([]byte, error) {
	var data []byte
	err := t.run(ctx, "read NDEF", func(ctx context.Context) error {
		if err := t.selectNDEFFile(ctx); err != nil {
			return err
		}
		n, err := t.readLength(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNoNDEF
		}
		data, err = t.readBinary(ctx, ndefLengthBytes, int(n))
		return err
	})
	return data, err
}

// ReadNDEF reads and decodes the NDEF message stored on the tag
func (t *Tag) ReadNDEF(ctx context.Context) (*ndef.Message, error) {
	data, err := t.ReadNDEFBytes(ctx)
	if err != nil {
		return nil, err
	}
	msg := &ndef.Message{}
	if _, err := msg.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("failed to decode NDEF message: %w", err)
	}
	return msg, nil
}

// WriteNDEFBytes replaces the NDEF message on the tag. NLEN is cleared
// before the message is written and set last, so a reader never sees a
// half written message.
func (t *Tag) WriteNDEFBytes(ctx context.Context, data []byte) error {
	if len(data) == 0 || len(data) > 0xFFFF-ndefLengthBytes {
		return fmt.Errorf("%w: NDEF message of %d bytes", ErrInvalidParameter, len(data))
	}
	return t.run(ctx, "write NDEF", func(ctx context.Context) error {
		if err := t.selectNDEFFile(ctx); err != nil {
			return err
		}
		if err := t.updateBinary(ctx, 0, []byte{0x00, 0x00}); err != nil {
			return err
		}
		if err := t.updateBinary(ctx, ndefLengthBytes, data); err != nil {
			return err
		}
		var nlen [ndefLengthBytes]byte
		binary.BigEndian.PutUint16(nlen[:], uint16(len(data)))
		return t.updateBinary(ctx, 0, nlen[:])
	})
}

// WriteNDEF encodes msg and writes it to the tag
func (t *Tag) WriteNDEF(ctx context.Context, msg *ndef.Message) error {
	if msg == nil {
		return fmt.Errorf("%w: nil NDEF message", ErrInvalidParameter)
	}
	data, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode NDEF message: %w", err)
	}
	return t.WriteNDEFBytes(ctx, data)
}

// WriteText writes a single text record
func (t *Tag) WriteText(ctx context.Context, text, language string) error {
	if language == "" {
		language = "en"
	}
	return t.WriteNDEF(ctx, ndef.NewTextMessage(text, language))
}

// WriteURI writes a single URI record
func (t *Tag) WriteURI(ctx context.Context, uri string) error {
	return t.WriteNDEF(ctx, ndef.NewURIMessage(uri))
}

// ReadSystemFile reads and decodes the system file
func (t *Tag) ReadSystemFile(ctx context.Context) (*SystemFile, error) {
	var sf *SystemFile
	err := t.run(ctx, "read system file", func(ctx context.Context) error {
		if err := t.selectNDEFApplication(ctx); err != nil {
			return err
		}
		if err := t.selectFile(ctx, FileSystem); err != nil {
			return err
		}
		n, err := t.readLength(ctx)
		if err != nil {
			return err
		}
		data, err := t.readBinary(ctx, 0, int(n))
		if err != nil {
			return err
		}
		sf, err = ParseSystemFile(data)
		return err
	})
	return sf, err
}

// VerifyI2CPassword presents the I2C password. A nil password means
// DefaultPassword.
func (t *Tag) VerifyI2CPassword(ctx context.Context, password []byte) error {
	return t.run(ctx, "verify I2C password", func(ctx context.Context) error {
		if err := t.selectNDEFApplication(ctx); err != nil {
			return err
		}
		return t.verify(ctx, PasswordI2C, password)
	})
}

// SetGPO writes the GPO byte of the system file. Changing the system file
// needs the I2C password; a nil password means DefaultPassword.
func (t *Tag) SetGPO(ctx context.Context, value byte, password []byte) error {
	return t.run(ctx, "set GPO", func(ctx context.Context) error {
		if err := t.selectNDEFApplication(ctx); err != nil {
			return err
		}
		if err := t.verify(ctx, PasswordI2C, password); err != nil {
			return err
		}
		if err := t.selectFile(ctx, FileSystem); err != nil {
			return err
		}
		return t.updateBinary(ctx, sysOffsetGPO, []byte{value})
	})
}

// run executes op under the tag lock and always ends the I2C session
// afterwards. An error from op takes precedence over a DESELECT failure.
func (t *Tag) run(ctx context.Context, name string, op func(context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	opErr := op(ctx)
	deselectErr := t.session.DeselectContext(ctx)

	if opErr != nil {
		if deselectErr != nil {
			t.session.log.Debug().Err(deselectErr).Str("op", name).Msg("deselect after failed operation")
		}
		return fmt.Errorf("%s: %w", name, opErr)
	}
	if deselectErr != nil {
		return fmt.Errorf("%s: deselect: %w", name, deselectErr)
	}
	return nil
}

// transceive sends one APDU expecting dataLen bytes before the status word
func (t *Tag) transceive(ctx context.Context, command string, apdu []byte, dataLen int) ([]byte, error) {
	resp, err := t.session.ExchangeContext(ctx, apdu, dataLen+statusLength+frame.Overhead)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", command, err)
	}
	return checkStatus(command, resp)
}

func (t *Tag) selectNDEFApplication(ctx context.Context) error {
	_, err := t.transceive(ctx, "select NDEF application", SelectNDEFApplicationAPDU(), 0)
	return err
}

func (t *Tag) selectFile(ctx context.Context, id uint16) error {
	_, err := t.transceive(ctx, fmt.Sprintf("select file %04X", id), SelectFileAPDU(id), 0)
	return err
}

func (t *Tag) selectNDEFFile(ctx context.Context) error {
	if err := t.selectNDEFApplication(ctx); err != nil {
		return err
	}
	return t.selectFile(ctx, FileNDEF)
}

func (t *Tag) verify(ctx context.Context, passwordID byte, password []byte) error {
	if password == nil {
		password = DefaultPassword
	}
	apdu, err := VerifyAPDU(passwordID, password)
	if err != nil {
		return err
	}
	_, err = t.transceive(ctx, "verify", apdu, 0)
	return err
}

// readLength reads the two byte length heading the selected file
func (t *Tag) readLength(ctx context.Context) (uint16, error) {
	data, err := t.readBinary(ctx, 0, ndefLengthBytes)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(data), nil
}

// maxReadChunk is the largest Le whose response fits in one frame
func (t *Tag) maxReadChunk() int {
	return min(t.session.MaxPayload()-statusLength, 0xFF)
}

// maxWriteChunk is the largest update whose command fits in one frame
func (t *Tag) maxWriteChunk() int {
	return min(t.session.MaxPayload()-apduHeaderLength, 0xFF)
}

// readBinary reads n bytes of the selected file starting at offset,
// splitting the read into frame sized chunks.
func (t *Tag) readBinary(ctx context.Context, offset uint16, n int) ([]byte, error) {
	if int(offset)+n > 0xFFFF {
		return nil, fmt.Errorf("%w: read of %d bytes at offset %d", ErrInvalidParameter, n, offset)
	}
	chunk := t.maxReadChunk()
	out := make([]byte, 0, n)
	for len(out) < n {
		le := min(chunk, n-len(out))
		pos := offset + uint16(len(out))
		data, err := t.transceive(ctx, "read binary", ReadBinaryAPDU(pos, byte(le)), le)
		if err != nil {
			return nil, err
		}
		if len(data) != le {
			return nil, fmt.Errorf("read binary at %d: %w: got %d bytes, want %d",
				pos, ErrResponseTooShort, len(data), le)
		}
		out = append(out, data...)
	}
	return out, nil
}

// updateBinary writes data to the selected file starting at offset,
// splitting the write into frame sized chunks.
func (t *Tag) updateBinary(ctx context.Context, offset uint16, data []byte) error {
	if int(offset)+len(data) > 0xFFFF {
		return fmt.Errorf("%w: write of %d bytes at offset %d", ErrInvalidParameter, len(data), offset)
	}
	chunk := t.maxWriteChunk()
	for pos := 0; pos < len(data); pos += chunk {
		end := min(pos+chunk, len(data))
		apdu, err := UpdateBinaryAPDU(offset+uint16(pos), data[pos:end])
		if err != nil {
			return err
		}
		if _, err := t.transceive(ctx, "update binary", apdu, 0); err != nil {
			return err
		}
	}
	return nil
}
