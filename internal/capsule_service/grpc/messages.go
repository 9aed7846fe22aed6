package grpccapsule

import cs "github.com/AnishMulay/capfs/internal/capsule_service"

type CreateRequest struct {
	HumanName string `cbor:"human_name"`
}

type OpenRequest struct {
	Name cs.Name `cbor:"name"`
}

type ResolveRequest struct {
	HumanName string `cbor:"human_name"`
}

type CapsuleResponse struct {
	Name cs.Name `cbor:"name"`
}

type AppendRequest struct {
	Name    cs.Name `cbor:"name"`
	Prev    cs.Hash `cbor:"prev"`
	Payload []byte  `cbor:"payload"`
}

type ReadRequest struct {
	Name   cs.Name `cbor:"name"`
	Number uint64  `cbor:"number"`
}

type ReadLatestRequest struct {
	Name cs.Name `cbor:"name"`
}

type RecordResponse struct {
	Record cs.Record `cbor:"record"`
}
