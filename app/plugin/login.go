package plugin

// LoginResult 登录结果，站点特有的错误码在插件边界映射到这里
type LoginResult int

const (
	LoginOk LoginResult = iota
	LoginCredentialsNotSpecified
	LoginIncorrectLoginPassword
	LoginInternalServerError
	LoginServiceUnavailable
	LoginUnknown
)

func (r LoginResult) String() string {
	switch r {
	case LoginOk:
		return "Ok"
	case LoginCredentialsNotSpecified:
		return "CredentialsNotSpecified"
	case LoginIncorrectLoginPassword:
		return "IncorrectLoginPassword"
	case LoginInternalServerError:
		return "InternalServerError"
	case LoginServiceUnavailable:
		return "ServiceUnavailable"
	default:
		return "Unknown"
	}
}

// LoginResultFromStatus 按 HTTP 状态码归类登录失败
func LoginResultFromStatus(code int) LoginResult {
	switch {
	case code == 401 || code == 403:
		return LoginIncorrectLoginPassword
	case code == 503:
		return LoginServiceUnavailable
	case code >= 500:
		return LoginInternalServerError
	default:
		return LoginUnknown
	}
}
