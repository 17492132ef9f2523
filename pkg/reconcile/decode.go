package reconcile

import (
	"encoding/json"
	"fmt"

	"deploy-reconciler/pkg/model"
)

// rpcEnvelope is the method-call framing used by agents that address the
// receiver by method name instead of setting kind.
type rpcEnvelope struct {
	Method string          `json:"method"`
	Args   json.RawMessage `json:"args"`
}

var methodKinds = map[string]model.ReportKind{
	"deploy_resp":          model.KindDeploy,
	"verify_networks_resp": model.KindVerifyNetworks,
}

// DecodeReport parses a report body, either flat or wrapped in an rpc envelope.
func DecodeReport(body []byte) (model.Report, error) {
	var env rpcEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return model.Report{}, fmt.Errorf("%w: %w", ErrMalformedReport, err)
	}
	payload := body
	var kind model.ReportKind
	if env.Method != "" {
		if len(env.Args) == 0 {
			return model.Report{}, fmt.Errorf("%w: method %q without args", ErrMalformedReport, env.Method)
		}
		payload = env.Args
		kind = model.ReportKind(env.Method)
		if k, ok := methodKinds[env.Method]; ok {
			kind = k
		}
	}

	var rep model.Report
	if err := json.Unmarshal(payload, &rep); err != nil {
		return model.Report{}, fmt.Errorf("%w: %w", ErrMalformedReport, err)
	}
	if kind != "" {
		rep.Kind = kind
	}
	if rep.TaskUUID == "" {
		return rep, fmt.Errorf("%w: task_uuid is required", ErrMalformedReport)
	}
	return rep, nil
}
