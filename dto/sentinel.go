package dto

// SentinelChallengeRequest is the body posted to /backend-api/sentinel/req.
type SentinelChallengeRequest struct {
	P    string `json:"p"`
	Flow string `json:"flow"`
	Id   string `json:"id"`
}

type SentinelTurnstile struct {
	Required bool   `json:"required"`
	Dx       string `json:"dx"`
}

type SentinelProofOfWork struct {
	Required   bool   `json:"required"`
	Seed       string `json:"seed"`
	Difficulty string `json:"difficulty"`
}

// SentinelChallengeResponse carries the fields we act on. The upstream shape
// drifts, so it is filled leniently from the raw body instead of strict
// unmarshalling; absent fields stay zero.
type SentinelChallengeResponse struct {
	Turnstile   SentinelTurnstile   `json:"turnstile"`
	Token       string              `json:"token"`
	ProofOfWork SentinelProofOfWork `json:"proofofwork"`
	ExpireAt    int64               `json:"expire_at"`
	ExpireAfter int64               `json:"expire_after"`
	Persona     string              `json:"persona"`
}

// SentinelPayload is the value of the openai-sentinel-token header before
// compact serialization.
type SentinelPayload struct {
	P    string `json:"p"`
	T    string `json:"t"`
	C    string `json:"c"`
	Id   string `json:"id"`
	Flow string `json:"flow"`
}
