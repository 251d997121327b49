package intent

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Intent
	}{
		{"greeting", "Hello there", Greeting},
		{"greeting beats math", "Hello, calculate 2+2", Greeting},
		{"greeting phrase", "Good morning agent", Greeting},
		{"math keyword", "Calculate 15 * 7", Calculation},
		{"digit and operator", "12 / 4", Calculation},
		{"equals sign", "x = 3", Calculation},
		{"what is", "what is love", Calculation},
		{"weather", "Weather in London", Weather},
		{"hi inside a word", "Weather in Chicago", Weather},
		{"translate", `Translate "hello" to Spanish`, Translation},
		{"how do you say", "How do you say thanks in French", Translation},
		{"stream", "Start a stream please", Streaming},
		{"push notification", "Test push notification", PushNotification},
		{"quoted greeting is payload", `Translate "hi" to German`, Translation},
		{"quoted keyword is payload", `Translate "calculate" to Dutch`, Translation},
		{"greeting needs a whole word", "this and which", General},
		{"general", "Tell me something", General},
		{"empty", "", General},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.text))
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	Convey("Given a set of inputs", t, func() {
		inputs := []string{"hi", "solve 1+1", "weather", "stream", "???", `say in "x"`}

		Convey("When classifying each twice", func() {
			Convey("Then both runs agree", func() {
				for _, input := range inputs {
					So(Classify(input), ShouldEqual, Classify(input))
				}
			})
		})
	})
}

func TestDetectGreeting(t *testing.T) {
	Convey("Given text containing a greeting", t, func() {
		Convey("Then the greeting word is returned in lower case", func() {
			So(DetectGreeting("HEY you"), ShouldEqual, "hey")
			So(DetectGreeting("well, good evening"), ShouldEqual, "good evening")
		})
	})

	Convey("Given text without a greeting", t, func() {
		Convey("Then nothing is returned", func() {
			So(DetectGreeting("this is chicago"), ShouldBeEmpty)
		})
	})
}
