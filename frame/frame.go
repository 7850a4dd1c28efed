// Package frame implements the wire-format reader/writer for the
// exchange protocol: UTF-8 text lines, a DEFLATE-compressed BSON
// envelope, and length-prefixed attachment blocks. Frame holds no
// protocol state beyond the transport handle it owns — turn-taking,
// identity, and handshake semantics live one layer up in package
// exchange.
package frame

import (
	"bufio"
	"compress/flate"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"mx/envelope"
)

// attachmentHeaderSize is 16 bytes of id plus an 8-byte little-endian
// signed length, per the attachment block layout.
const attachmentHeaderSize = 16 + 8

// Codec is the low-level frame reader/writer over one transport
// connection. It is not safe for concurrent use — package exchange
// serializes access per the single-threaded-per-connection model.
type Codec struct {
	conn io.ReadWriteCloser
	r    *bufio.Reader
	w    *bufio.Writer
}

// New wraps conn in a frame Codec.
func New(conn io.ReadWriteCloser) *Codec {
	return &Codec{conn: conn, r: bufio.NewReader(conn), w: bufio.NewWriter(conn)}
}

// Close closes the underlying transport.
func (c *Codec) Close() error { return c.conn.Close() }

// Flush flushes any buffered writes to the transport. Every exported
// write operation below calls Flush itself, so a sequence of them never
// leaves bytes buffered.
func (c *Codec) Flush() error { return c.w.Flush() }

// WriteLine writes one text line, terminated by a single line break.
func (c *Codec) WriteLine(text string) error {
	if _, err := c.w.WriteString(text); err != nil {
		return err
	}
	if err := c.w.WriteByte('\n'); err != nil {
		return err
	}
	return c.w.Flush()
}

// ReadLine returns the next non-empty line, with its terminator
// stripped. Empty lines are skipped — they are invisible to upper
// layers. Returns io.EOF when the peer has closed the stream.
func (c *Codec) ReadLine() (string, error) {
	for {
		line, err := c.r.ReadString('\n')
		if err != nil && line == "" {
			return "", err
		}
		line = strings.TrimRight(line, "\r\n")
		if line != "" {
			return line, nil
		}
		if err != nil {
			return "", err
		}
	}
}

// WriteEnvelope serializes env (nil for the null sentinel) into a fresh
// DEFLATE stream, flushes and closes the compressor, and flushes the
// transport. It returns the attachment descriptors env's payload
// references, discovered via the explicit Attachments() visitor rather
// than ambient serializer state.
func (c *Codec) WriteEnvelope(env *envelope.Envelope) ([]*envelope.DataStream, error) {
	data, err := envelope.Encode(env)
	if err != nil {
		return nil, fmt.Errorf("frame: encode envelope: %w", err)
	}
	fw, err := flate.NewWriter(c.w, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(data); err != nil {
		return nil, err
	}
	// Close flushes and terminates the DEFLATE stream but does not touch
	// the underlying writer — the transport stays open for what follows.
	if err := fw.Close(); err != nil {
		return nil, err
	}
	if err := c.w.Flush(); err != nil {
		return nil, err
	}
	return env.Attachments(), nil
}

// ReadEnvelope opens a DEFLATE decompressor over the transport, reads
// exactly one envelope, and closes the decompressor. The returned
// attachment descriptors are receiver-side placeholders whose Read will
// fail until the exchange stream spools and binds them.
func (c *Codec) ReadEnvelope() (*envelope.Envelope, []*envelope.DataStream, error) {
	fr := flate.NewReader(c.r)
	data, err := io.ReadAll(fr)
	if err != nil {
		return nil, nil, fmt.Errorf("frame: read envelope stream: %w", err)
	}
	if err := fr.Close(); err != nil {
		return nil, nil, err
	}
	env, err := envelope.Decode(data)
	if err != nil {
		return nil, nil, fmt.Errorf("frame: decode envelope: %w", err)
	}
	return env, env.Attachments(), nil
}

// WriteAttachment writes one attachment block: 16-byte id, 8-byte
// little-endian signed length, then exactly Length payload bytes pulled
// from ds's writer. Blocks are written uncompressed, directly to the
// transport, after the preceding envelope's DEFLATE stream has closed.
func (c *Codec) WriteAttachment(ds *envelope.DataStream) error {
	header := make([]byte, attachmentHeaderSize)
	idBytes, err := ds.ID.MarshalBinary()
	if err != nil {
		return err
	}
	copy(header[0:16], idBytes)
	binary.LittleEndian.PutUint64(header[16:24], uint64(ds.Length))
	if _, err := c.w.Write(header); err != nil {
		return err
	}
	if err := c.w.Flush(); err != nil {
		return err
	}
	if err := ds.WriteTo(c.conn); err != nil {
		return err
	}
	return nil
}

// ReadAttachmentHeader reads one attachment block's id and length. The
// caller must then read exactly length bytes via AttachmentBody before
// the next header can be read — the stream has no resync marker.
func (c *Codec) ReadAttachmentHeader() (uuid.UUID, int64, error) {
	header := make([]byte, attachmentHeaderSize)
	if _, err := io.ReadFull(c.r, header); err != nil {
		return uuid.UUID{}, 0, fmt.Errorf("frame: truncated attachment header: %w", err)
	}
	id, err := uuid.FromBytes(header[0:16])
	if err != nil {
		return uuid.UUID{}, 0, fmt.Errorf("frame: malformed attachment id: %w", err)
	}
	length := int64(binary.LittleEndian.Uint64(header[16:24]))
	return id, length, nil
}

// AttachmentBody returns a reader bounded to exactly length bytes,
// positioned right after a header read by ReadAttachmentHeader. The
// caller must read it to completion (or discard it) before the next
// ReadAttachmentHeader call, since the codec does no internal buffering
// of attachment payloads — that would defeat the point of streaming
// arbitrarily large blobs.
func (c *Codec) AttachmentBody(length int64) io.Reader {
	return io.LimitReader(c.r, length)
}
