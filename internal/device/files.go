// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package device

import (
	"fmt"

	"github.com/sapphire-mesh/sapphire/pkg/protocol"
)

// fileTransferChunk is the per-round-trip unit for get_file/put_file
// (§4.D: "File transfer uses 512-byte chunks").
const fileTransferChunk = 512

func (s *Session) fileID(name string) (uint32, error) {
	resp, err := s.roundTrip(protocol.NewFileGetIDRequest(name))
	if err != nil {
		return 0, err
	}
	idResp, ok := resp.(*protocol.FileGetIDResponse)
	if !ok {
		return 0, fmt.Errorf("device: file_get_id: unexpected response type %T", resp)
	}
	return idResp.FileID(), nil
}

func (s *Session) createFile(name string) (uint32, error) {
	resp, err := s.roundTrip(protocol.NewFileCreateRequest(name))
	if err != nil {
		return 0, err
	}
	idResp, ok := resp.(*protocol.FileGetIDResponse)
	if !ok {
		return 0, fmt.Errorf("device: file_create: unexpected response type %T", resp)
	}
	return idResp.FileID(), nil
}

// GetFile reads name to exhaustion, one fileTransferChunk round-trip at a
// time; a chunk shorter than fileTransferChunk marks end-of-file (§4.D).
func (s *Session) GetFile(name string) ([]byte, error) {
	fileID, err := s.fileID(name)
	if err != nil {
		return nil, fmt.Errorf("device: get_file %q: %w", name, err)
	}

	var out []byte
	for offset := uint32(0); ; offset += fileTransferChunk {
		resp, err := s.roundTrip(protocol.NewFileReadRequest(fileID, offset))
		if err != nil {
			return nil, fmt.Errorf("device: get_file %q: %w", name, err)
		}
		readResp, ok := resp.(*protocol.FileReadResponse)
		if !ok {
			return nil, fmt.Errorf("device: get_file %q: unexpected response type %T", name, resp)
		}
		out = append(out, readResp.Data()...)
		if len(readResp.Data()) < fileTransferChunk {
			break
		}
	}
	return out, nil
}

// PutFile writes data to name in fileTransferChunk-sized pieces, creating the
// file first if it doesn't already exist. A short write aborts with an I/O
// error (§4.D).
func (s *Session) PutFile(name string, data []byte) error {
	fileID, err := s.fileID(name)
	if err != nil {
		fileID, err = s.createFile(name)
		if err != nil {
			return fmt.Errorf("device: put_file %q: create: %w", name, err)
		}
	}

	for offset := 0; offset < len(data); offset += fileTransferChunk {
		end := offset + fileTransferChunk
		if end > len(data) {
			end = len(data)
		}
		chunk := data[offset:end]

		resp, err := s.roundTrip(protocol.NewFileWriteRequest(fileID, uint32(offset), chunk))
		if err != nil {
			return fmt.Errorf("device: put_file %q: %w", name, err)
		}
		writeResp, ok := resp.(*protocol.FileWriteResponse)
		if !ok {
			return fmt.Errorf("device: put_file %q: unexpected response type %T", name, resp)
		}
		if int(writeResp.Written()) < len(chunk) {
			return fmt.Errorf("device: put_file %q: short write at offset %d", name, offset)
		}
	}
	return nil
}
