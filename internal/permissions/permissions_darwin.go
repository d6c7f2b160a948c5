package permissions

/*
#cgo CFLAGS: -x objective-c -fmodules
#cgo LDFLAGS: -framework AVFoundation -framework ApplicationServices

#import <AVFoundation/AVFoundation.h>
#import <ApplicationServices/ApplicationServices.h>

int check_microphone_permission() {
    AVAuthorizationStatus status = [AVCaptureDevice authorizationStatusForMediaType:AVMediaTypeAudio];
    return (int)status;
}

int check_accessibility_permission() {
    Boolean isAccessibilityEnabled = AXIsProcessTrusted();
    return isAccessibilityEnabled ? 1 : 0;
}
*/
import "C"

import (
	"fmt"
	"os/exec"
)

var settingsURLs = map[Permission]string{
	Microphone:    "x-apple.systempreferences:com.apple.preference.security?Privacy_Microphone",
	Accessibility: "x-apple.systempreferences:com.apple.preference.security?Privacy_Accessibility",
}

func platformStatus(p Permission) Status {
	switch p {
	case Microphone:
		return Status(C.check_microphone_permission())
	case Accessibility:
		if C.check_accessibility_permission() == 1 {
			return Authorized
		}
		return Denied
	}
	return NotDetermined
}

func platformOpenSettings(p Permission) error {
	url, ok := settingsURLs[p]
	if !ok {
		return fmt.Errorf("no settings page for %q", p)
	}
	return exec.Command("open", url).Run()
}
