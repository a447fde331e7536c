package service

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/hancat/sora2api/common"
	"github.com/hancat/sora2api/dto"
)

var (
	tokenCodecOnce sync.Once
	tokenCodec     tokenizer.Codec
)

func getTokenCodec() tokenizer.Codec {
	tokenCodecOnce.Do(func() {
		codec, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			common.SysError("failed to init tokenizer: " + err.Error())
			return
		}
		tokenCodec = codec
	})
	return tokenCodec
}

// CountTokenText 估算文本 token 数，tokenizer 初始化失败时退化为按 4 字符折一个
func CountTokenText(text string) int {
	if text == "" {
		return 0
	}
	codec := getTokenCodec()
	if codec == nil {
		return len(text)/4 + 1
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return len(text)/4 + 1
	}
	return len(ids)
}

// BuildUsage 按提示词和返回文本构造 usage 块
func BuildUsage(prompt string, completion string) dto.Usage {
	promptTokens := CountTokenText(prompt)
	completionTokens := CountTokenText(completion)
	return dto.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
}
