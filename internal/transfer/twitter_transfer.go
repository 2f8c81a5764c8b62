package transfer

type TwitterTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
}

type TwitterUserResponse struct {
	Data TwitterUser `json:"data"`
}

type TwitterUser struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

type TwitterMediaInitResponse struct {
	MediaIDString    string `json:"media_id_string"`
	MediaID          int64  `json:"media_id"`
	ExpiresAfterSecs int64  `json:"expires_after_secs"`
}

type TwitterMediaFinalizeResponse struct {
	MediaIDString  string `json:"media_id_string"`
	ProcessingInfo *struct {
		State          string `json:"state"`
		CheckAfterSecs int    `json:"check_after_secs"`
	} `json:"processing_info"`
}

type TwitterTweetRequest struct {
	Text  string             `json:"text"`
	Media *TwitterTweetMedia `json:"media,omitempty"`
}

type TwitterTweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type TwitterTweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}
