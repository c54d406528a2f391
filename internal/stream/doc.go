// Package stream decodes the chat backend's event stream.
//
// # Wire Format
//
// The backend answers a chat request with a chunked body of newline
// delimited JSON objects. Every object has a "type" discriminator:
//
//	{"type":"user_message_receipt","message":{"id":"msg_1"}}
//	{"type":"assistant_message_start","message":{"id":"msg_2","agent":{"id":3,"name":"Ada"}}}
//	{"type":"stream_start","message_id":"msg_2"}
//	{"type":"content_chunk","message_id":"msg_2","chunk":"Hel"}
//	{"type":"stream_end","message_id":"msg_2","status":"success"}
//
// Parse maps each record onto one concrete Event type. Unknown kinds become
// Unknown and are ignored downstream.
//
// # Decoding
//
// Decoder.Feed accepts arbitrary byte chunks and returns the events for
// every complete line. A record split across chunks is held until its
// newline arrives. Blank lines are skipped. Malformed lines are logged and
// dropped without aborting the stream. When the source ends, an
// unterminated trailing fragment is discarded.
//
// Reader wraps an io.Reader and yields events lazily:
//
//	r := stream.NewReader(resp.Body, stream.WithLogger(logger))
//	for event, err := range r.All() {
//	    if err != nil {
//	        return err
//	    }
//	    session.ApplyIncomingEvent(event)
//	}
package stream
