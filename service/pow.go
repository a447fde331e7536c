package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"math/rand"
	"strconv"
	"time"

	"github.com/bytedance/gopkg/util/gopool"
	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"

	"github.com/hancat/sora2api/common"
	"github.com/hancat/sora2api/setting"
)

const (
	// PowPrefixThrowaway marks a token solved against the local static
	// difficulty, sent with the initial challenge request.
	PowPrefixThrowaway = "gAAAAAC"
	// PowPrefixSolved marks a token solved against the server-issued
	// challenge.
	PowPrefixSolved = "gAAAAAB"

	powStaticDifficulty = "0fffff"
	powFallbackMarker   = "wQ8Lk5FbGpA2NcR9dShT6gYjU7VxZ4D"
)

var powCores = []int{8, 16, 24, 32}

var powScreenSizes = []int{1920 + 1080, 2560 + 1440, 1920 + 1200, 2560 + 1600}

var powScripts = []string{
	"https://cdn.oaistatic.com/_next/static/cXh69klOLzS0Gy2joLDRS/_ssgManifest.js?dpl=453ebaec0d44c2decab71692e1bfe39be35a24b3",
}

var powDeployments = []string{"prod-f501fe933b3edf57aea882da888e1a544df99840"}

// 注意：分隔符是 U+2212，不是 ASCII 连字符
var powNavigatorKeys = []string{
	"registerProtocolHandler−function registerProtocolHandler() { [native code] }",
	"storage−[object StorageManager]",
	"locks−[object LockManager]",
	"appCodeName−Mozilla",
	"permissions−[object Permissions]",
	"webdriver−false",
	"vendor−Google Inc.",
	"mediaDevices−[object MediaDevices]",
	"cookieEnabled−true",
	"product−Gecko",
	"productSub−20030107",
	"hardwareConcurrency−32",
	"onLine−true",
}

var powDocumentKeys = []string{"_reactListeningo743lnnpvdg", "location"}

var powWindowKeys = []string{
	"0", "window", "self", "document", "name", "location",
	"navigator", "screen", "innerWidth", "innerHeight",
	"localStorage", "sessionStorage", "crypto", "performance",
	"fetch", "setTimeout", "setInterval", "console",
}

var processStart = time.Now()

// PowEnvironment is the 18-slot browser fingerprint array serialized into
// every proof. Slots 3 and 9 are substituted with the iteration counters
// during the search, the rest stays fixed for one solve.
type PowEnvironment struct {
	ScreenSum    int
	ParseTime    string
	HeapLimit    int64
	UserAgent    string
	ScriptURL    string
	Deployment   string
	Language     string
	Languages    string
	NavigatorKey string
	DocumentKey  string
	WindowKey    string
	PerfNow      float64
	RandomUUID   string
	Marker       string
	Cores        int
	TimeOrigin   float64
}

var powTimeZone = time.FixedZone("GMT-0500", -5*3600)

func powParseTime(now time.Time) string {
	return now.In(powTimeZone).Format("Mon Jan 02 2006 15:04:05") + " GMT-0500 (Eastern Standard Time)"
}

// NewPowEnvironment samples a fresh fingerprint for one solve.
func NewPowEnvironment(userAgent string) *PowEnvironment {
	perfNow := float64(time.Since(processStart).Nanoseconds()) / 1e6
	return &PowEnvironment{
		ScreenSum:    powScreenSizes[rand.Intn(len(powScreenSizes))],
		ParseTime:    powParseTime(time.Now()),
		HeapLimit:    4294705152,
		UserAgent:    userAgent,
		ScriptURL:    powScripts[rand.Intn(len(powScripts))],
		Deployment:   powDeployments[rand.Intn(len(powDeployments))],
		Language:     "en-US",
		Languages:    "en-US,es-US,en,es",
		NavigatorKey: powNavigatorKeys[rand.Intn(len(powNavigatorKeys))],
		DocumentKey:  powDocumentKeys[rand.Intn(len(powDocumentKeys))],
		WindowKey:    powWindowKeys[rand.Intn(len(powWindowKeys))],
		PerfNow:      perfNow,
		RandomUUID:   uuid.NewString(),
		Marker:       "",
		Cores:        powCores[rand.Intn(len(powCores))],
		TimeOrigin:   float64(time.Now().UnixNano())/1e6 - perfNow,
	}
}

// segments pre-serializes the static slots around the two dynamic ones, so
// the search loop only concatenates.
func (e *PowEnvironment) segments() (part1, part2, part3 []byte, err error) {
	head, err := common.CompactJSON([]interface{}{e.ScreenSum, e.ParseTime, e.HeapLimit})
	if err != nil {
		return nil, nil, nil, err
	}
	mid, err := common.CompactJSON([]interface{}{e.UserAgent, e.ScriptURL, e.Deployment, e.Language, e.Languages})
	if err != nil {
		return nil, nil, nil, err
	}
	tail, err := common.CompactJSON([]interface{}{
		e.NavigatorKey, e.DocumentKey, e.WindowKey,
		e.PerfNow, e.RandomUUID, e.Marker, e.Cores, e.TimeOrigin,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	// "[a,b,c]" -> "[a,b,c,"
	part1 = append(head[:len(head)-1], ',')
	// "[d,...,h]" -> ",d,...,h,"
	part2 = append(append([]byte{','}, mid[1:len(mid)-1]...), ',')
	// "[k,...,r]" -> ",k,...,r]"
	part3 = append([]byte{','}, tail[1:]...)
	return part1, part2, part3, nil
}

// SolvePow searches for a base64-encoded config whose sha3-512 over
// seed||encoded sorts at or below the difficulty target. The bool reports
// whether a real answer was found; on exhaustion (or an unparsable
// difficulty) the fallback token is returned instead. Never panics, never
// errors: the caller proceeds either way.
func SolvePow(seed string, difficulty string, env *PowEnvironment) (string, bool) {
	return solvePowWithLimit(seed, difficulty, env, setting.PowMaxIterations())
}

func solvePowWithLimit(seed string, difficulty string, env *PowEnvironment, maxIterations int) (string, bool) {
	target, err := hex.DecodeString(difficulty)
	if err != nil {
		return powFallbackToken(seed), false
	}
	diffLen := len(difficulty) / 2
	part1, part2, part3, err := env.segments()
	if err != nil {
		return powFallbackToken(seed), false
	}

	seedBytes := []byte(seed)
	digest := sha3.New512()
	n := diffLen
	if n > digest.Size() {
		n = digest.Size()
	}

	var jsonBuf []byte
	var encBuf []byte
	var sumBuf []byte
	for i := 0; i < maxIterations; i++ {
		jsonBuf = jsonBuf[:0]
		jsonBuf = append(jsonBuf, part1...)
		jsonBuf = strconv.AppendInt(jsonBuf, int64(i), 10)
		jsonBuf = append(jsonBuf, part2...)
		jsonBuf = strconv.AppendInt(jsonBuf, int64(i>>1), 10)
		jsonBuf = append(jsonBuf, part3...)

		encLen := base64.StdEncoding.EncodedLen(len(jsonBuf))
		if cap(encBuf) < encLen {
			encBuf = make([]byte, encLen)
		}
		encBuf = encBuf[:encLen]
		base64.StdEncoding.Encode(encBuf, jsonBuf)

		digest.Reset()
		digest.Write(seedBytes)
		digest.Write(encBuf)
		sumBuf = digest.Sum(sumBuf[:0])

		// 边界取等：hash 前缀等于 target 也算命中
		if bytes.Compare(sumBuf[:n], target) <= 0 {
			return string(encBuf), true
		}
	}
	return powFallbackToken(seed), false
}

func powFallbackToken(seed string) string {
	return powFallbackMarker + base64.StdEncoding.EncodeToString([]byte(`"`+seed+`"`))
}

// GetPowToken builds the throwaway token sent with the challenge request.
// The configured default difficulty is loose enough that this resolves
// within a few iterations.
func GetPowToken(userAgent string) string {
	env := NewPowEnvironment(userAgent)
	seed := strconv.FormatFloat(rand.Float64(), 'g', -1, 64)
	difficulty := setting.PowDifficulty()
	if difficulty == "" {
		difficulty = powStaticDifficulty
	}
	solution, _ := SolvePow(seed, difficulty, env)
	return PowPrefixThrowaway + solution
}

// SolvePowAsync runs the search on the shared worker pool and honors ctx:
// a cancelled caller gets the fallback token immediately while the worker
// drains in the background.
func SolvePowAsync(ctx context.Context, seed string, difficulty string, env *PowEnvironment) (string, bool) {
	type powResult struct {
		solution string
		ok       bool
	}
	ch := make(chan powResult, 1)
	gopool.Go(func() {
		solution, ok := SolvePow(seed, difficulty, env)
		ch <- powResult{solution: solution, ok: ok}
	})
	select {
	case r := <-ch:
		return r.solution, r.ok
	case <-ctx.Done():
		return powFallbackToken(seed), false
	}
}
