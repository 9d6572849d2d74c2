package admin

// Result codes shared by every admin action.
const (
	ResultOK             = 0
	ResultRequestNull    = -1
	ResultContentType    = -2
	ResultHTTPMethod     = -3
	ResultForbidden      = -4
	ResultActionNotFound = -5
	ResultReadRequest    = -6
	ResultWriteRequest   = -7
)

// Kind is the decoded meaning of a non-zero result code for a given action.
type Kind int

const (
	KindUnknown Kind = iota
	KindOK

	KindRequestNull
	KindContentType
	KindHTTPMethod
	KindForbidden
	KindActionNotFound
	KindReadRequest
	KindWriteRequest

	KindNoExistingDB
	KindSchemaOutOfSync
	KindMissingConstants
	KindInsecureAdminCredential
	KindInvalidState
	KindMissingDeploymentMode
	KindMissingBasePath
	KindMissingRuntimePath
	KindInvalidLicense
	KindSecurityDisabled
	KindStartupActionFailed
	KindNoMobileLicense

	KindConfigRejected
	KindSubscriberExists
)

var kindNames = map[Kind]string{
	KindUnknown:                 "unknown",
	KindOK:                      "ok",
	KindRequestNull:             "request_null",
	KindContentType:             "content_type",
	KindHTTPMethod:              "http_method",
	KindForbidden:               "forbidden",
	KindActionNotFound:          "action_not_found",
	KindReadRequest:             "read_request",
	KindWriteRequest:            "write_request",
	KindNoExistingDB:            "no_existing_db",
	KindSchemaOutOfSync:         "schema_out_of_sync",
	KindMissingConstants:        "missing_constants",
	KindInsecureAdminCredential: "insecure_admin_credential",
	KindInvalidState:            "invalid_state",
	KindMissingDeploymentMode:   "missing_deployment_mode",
	KindMissingBasePath:         "missing_base_path",
	KindMissingRuntimePath:      "missing_runtime_path",
	KindInvalidLicense:          "invalid_license",
	KindSecurityDisabled:        "security_disabled",
	KindStartupActionFailed:     "startup_action_failed",
	KindNoMobileLicense:         "no_mobile_in_license",
	KindConfigRejected:          "config_rejected",
	KindSubscriberExists:        "subscriber_exists",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

var commonKinds = map[int]Kind{
	ResultRequestNull:    KindRequestNull,
	ResultContentType:    KindContentType,
	ResultHTTPMethod:     KindHTTPMethod,
	ResultForbidden:      KindForbidden,
	ResultActionNotFound: KindActionNotFound,
	ResultReadRequest:    KindReadRequest,
	ResultWriteRequest:   KindWriteRequest,
}

var actionKinds = map[string]map[int]Kind{
	ActionStart: {
		2:  KindNoExistingDB,
		3:  KindSchemaOutOfSync,
		4:  KindMissingConstants,
		5:  KindInsecureAdminCredential,
		6:  KindInvalidState,
		7:  KindMissingDeploymentMode,
		8:  KindMissingBasePath,
		9:  KindMissingRuntimePath,
		10: KindInvalidLicense,
		11: KindSecurityDisabled,
		12: KindStartupActionFailed,
		13: KindNoMobileLicense,
	},
	ActionUpdateConfiguration:             {1: KindConfigRejected},
	ActionUpdateAppContainerConfiguration: {1: KindConfigRejected},
	ActionCreateLogSubscriber:             {3: KindSubscriberExists},
	ActionCheckHealth:                     {2: KindInvalidState},
}

// Classify decodes a result code in the context of the action that produced it.
func Classify(action string, code int) Kind {
	if code == ResultOK {
		return KindOK
	}
	if k, ok := commonKinds[code]; ok {
		return k
	}
	if table, ok := actionKinds[action]; ok {
		if k, ok := table[code]; ok {
			return k
		}
	}
	return KindUnknown
}
