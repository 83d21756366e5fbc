// Package telepeer runs a four-message request/acknowledge exchange between
// two ends of one process (or two processes) and reports how long each step
// took.
//
// Components:
//   - packet.Record: the fixed telemetry record being exchanged.
//   - codec.Codec[packet.Record]: flatbuffers, JSON, protobuf wire, msgpack or CBOR.
//   - channel.Requester / channel.Responder: tcp:// or udp:// request/reply channels.
//   - provider.Provider: optional journal of received requests (ristretto, bigcache, Redis).
//   - seqstore.Store: per-session sequence numbers for Run (local or Redis).
//
// Exchange:
//
//	Idle -> RequestSent      encode, requester sends
//	     -> RequestReceived  responder receives, decodes, journals, handles
//	     -> AckSent          responder sends "ACK"
//	     -> AckReceived      requester receives the ack
//	     -> Idle
//
// Usage:
//
//	p, _ := telepeer.New(ctx, telepeer.Options{
//	    Address: "tcp://*:5555",
//	    Codec:   codec.FlatBuffers{},
//	})
//	defer p.Close()
//	sum, err := telepeer.Run(ctx, p, telepeer.RunOptions{Iterations: 10, VectorLen: 20})
package telepeer
