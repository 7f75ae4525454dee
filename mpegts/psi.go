package mpegts

import "fmt"

const (
	tableIDPAT = 0x00
	tableIDPMT = 0x02

	descriptorTagSubtitling = 0x59

	// Stream types that may carry DVB subtitles. 0x06 is the generic private
	// PES type used by most broadcasters; 0x59 and the user-private range are
	// seen in the wild.
	streamTypePrivatePES   = 0x06
	streamTypeDVBSubtitle  = 0x59
	streamTypeUserPrivateL = 0x90
)

// streamTypeName returns a human-readable label for a PMT stream type.
func streamTypeName(streamType uint8) string {
	switch {
	case streamType == streamTypePrivatePES:
		return "private PES"
	case streamType == streamTypeDVBSubtitle:
		return "DVB subtitles"
	case streamType >= streamTypeUserPrivateL:
		return "user private"
	default:
		return fmt.Sprintf("type 0x%02X", streamType)
	}
}

// walkSections iterates over the PSI sections in a reassembled payload,
// starting after the pointer field, and invokes fn for each complete section.
// Stuffing bytes (0xFF) and padding with a clear section_syntax_indicator end
// the walk.
func walkSections(payload []byte, fn func(tableID uint8, section []byte) error) error {
	if len(payload) < 1 {
		return fmt.Errorf("mpegts: PSI payload too short")
	}

	pointerField := int(payload[0])
	offset := 1 + pointerField
	if offset >= len(payload) {
		return fmt.Errorf("mpegts: PSI pointer field out of range")
	}

	for offset < len(payload) {
		tableID := payload[offset]
		if tableID == 0xFF {
			break // stuffing bytes
		}
		if offset+3 > len(payload) {
			break
		}

		// section_syntax_indicator must be 1 for PAT/PMT.
		// Zero padding bytes will have this bit clear.
		if payload[offset+1]&0x80 == 0 {
			break
		}

		sectionLength := int(payload[offset+1]&0x0F)<<8 | int(payload[offset+2])
		sectionEnd := offset + 3 + sectionLength
		if sectionEnd > len(payload) {
			break
		}

		if err := fn(tableID, payload[offset:sectionEnd]); err != nil {
			return err
		}

		offset = sectionEnd
	}

	return nil
}

// isSectionComplete reports whether a reassembled PSI payload contains at
// least its full declared sections, so accumulation can stop.
func isSectionComplete(payload []byte) bool {
	if len(payload) < 1 {
		return false
	}

	pointerField := int(payload[0])
	offset := 1 + pointerField
	if offset >= len(payload) {
		return false
	}

	for offset < len(payload) {
		if payload[offset] == 0xFF {
			return true // stuffing bytes, section is complete
		}
		if offset+3 > len(payload) {
			return false
		}
		if payload[offset+1]&0x80 == 0 {
			return true // not a valid section header, treat as padding
		}
		sectionLength := int(payload[offset+1]&0x0F)<<8 | int(payload[offset+2])
		needed := 3 + sectionLength
		if offset+needed > len(payload) {
			return false
		}
		offset += needed
	}
	return true
}

// parsePATSection returns the PMT PID of the first program with a non-zero
// program number. Program number 0 is the NIT PID.
func parsePATSection(data []byte) (uint16, error) {
	if err := verifyCRC32(data); err != nil {
		return 0, fmt.Errorf("mpegts: PAT %w", err)
	}

	// data layout:
	// [0]    table_id
	// [1-2]  section_syntax_indicator(1) + zero(1) + reserved(2) + section_length(12)
	// [3-4]  transport_stream_id
	// [5]    reserved(2) + version(5) + current_next(1)
	// [6]    section_number
	// [7]    last_section_number
	// [8..N-4] program entries (4 bytes each)
	// [N-4..N] CRC32

	if len(data) < 12 { // minimum: 8 header + 4 CRC
		return 0, fmt.Errorf("mpegts: PAT too short")
	}

	sectionLength := int(data[1]&0x0F)<<8 | int(data[2])
	entryEnd := 3 + sectionLength - 4 // subtract CRC32
	if entryEnd > len(data)-4 {
		entryEnd = len(data) - 4
	}

	for i := 8; i+4 <= entryEnd; i += 4 {
		programNumber := uint16(data[i])<<8 | uint16(data[i+1])
		pmtPID := uint16(data[i+2]&0x1F)<<8 | uint16(data[i+3])

		if programNumber == 0 {
			continue // NIT PID, skip
		}
		return pmtPID, nil
	}

	return 0, fmt.Errorf("mpegts: PAT has no program entries")
}

// parsePMTSection walks the elementary stream loop of a PMT section,
// scanning each stream's descriptor loop for the DVB subtitling descriptor.
func parsePMTSection(data []byte) ([]pmtStream, error) {
	if err := verifyCRC32(data); err != nil {
		return nil, fmt.Errorf("mpegts: PMT %w", err)
	}

	// data layout:
	// [0]    table_id
	// [1-2]  section_syntax_indicator(1) + zero(1) + reserved(2) + section_length(12)
	// [3-4]  program_number
	// [5]    reserved(2) + version(5) + current_next(1)
	// [6]    section_number
	// [7]    last_section_number
	// [8-9]  reserved(3) + PCR_PID(13)
	// [10-11] reserved(4) + program_info_length(12)
	// [...] program descriptors
	// [...] elementary stream entries
	// [...] CRC32

	if len(data) < 16 { // minimum: 12 header + 4 CRC
		return nil, fmt.Errorf("mpegts: PMT too short")
	}

	sectionLength := int(data[1]&0x0F)<<8 | int(data[2])
	sectionEnd := 3 + sectionLength
	if sectionEnd > len(data) {
		sectionEnd = len(data)
	}

	programInfoLength := int(data[10]&0x0F)<<8 | int(data[11])
	offset := 12 + programInfoLength

	var streams []pmtStream
	// Parse elementary stream entries until 4 bytes before section end (CRC).
	for offset+5 <= sectionEnd-4 {
		streamType := data[offset]
		elementaryPID := uint16(data[offset+1]&0x1F)<<8 | uint16(data[offset+2])
		esInfoLength := int(data[offset+3]&0x0F)<<8 | int(data[offset+4])

		esInfoEnd := offset + 5 + esInfoLength
		if esInfoEnd > sectionEnd-4 {
			esInfoEnd = sectionEnd - 4
		}

		streams = append(streams, pmtStream{
			pid:        elementaryPID,
			streamType: streamType,
			subtitling: parseESDescriptors(data[offset+5 : esInfoEnd]),
		})

		offset += 5 + esInfoLength
	}

	return streams, nil
}

// parseESDescriptors walks an elementary stream descriptor loop and returns
// the items of any DVB subtitling descriptor (tag 0x59) found. Each item is
// 8 bytes: language(3), subtitling_type(1), composition_page_id(2),
// ancillary_page_id(2).
func parseESDescriptors(loop []byte) []subtitlingItem {
	var items []subtitlingItem

	offset := 0
	for offset+2 <= len(loop) {
		tag := loop[offset]
		length := int(loop[offset+1])
		body := offset + 2
		if body+length > len(loop) {
			break
		}

		if tag == descriptorTagSubtitling {
			for i := body; i+8 <= body+length; i += 8 {
				items = append(items, subtitlingItem{
					language:        string(loop[i : i+3]),
					subtitlingType:  loop[i+3],
					compositionPage: uint16(loop[i+4])<<8 | uint16(loop[i+5]),
					ancillaryPage:   uint16(loop[i+6])<<8 | uint16(loop[i+7]),
				})
			}
		}

		offset = body + length
	}

	return items
}
