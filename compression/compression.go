/*
 * Copyright (c) 2021 Gilles Chehade <gilles@poolp.org>
 *
 * Permission to use, copy, modify, and distribute this software for any
 * purpose with or without fee is hereby granted, provided that the above
 * copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR
 * ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES
 * WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN
 * ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF
 * OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

// Package compression wraps the single codec the archive format uses:
// Snappy framing over block bodies and index hunks. The wire format
// fixes one codec, unlike the teacher's name-dispatched gzip/lz4
// Deflate/Inflate, so there is nothing to select between here.
package compression

import (
	"github.com/golang/snappy"
)

// Deflate compresses buf with Snappy.
func Deflate(buf []byte) []byte {
	return snappy.Encode(nil, buf)
}

// Inflate decompresses a Snappy-compressed buffer produced by Deflate.
func Inflate(buf []byte) ([]byte, error) {
	return snappy.Decode(nil, buf)
}
