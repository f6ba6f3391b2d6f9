package detector

// Reference right-hand poses used by tests and fixture sequences. Rows are
// wrist, then thumb, index, middle, ring and pinky from base to tip.

var openPalmPoints = [NumLandmarks]Point3D{
	{0.50, 0.80, 0},
	{0.55, 0.75, 0.02}, {0.62, 0.70, 0.03}, {0.68, 0.65, 0.03}, {0.73, 0.60, 0.03},
	{0.55, 0.68, 0}, {0.57, 0.55, 0}, {0.58, 0.45, 0}, {0.58, 0.35, 0},
	{0.50, 0.66, 0}, {0.50, 0.52, 0}, {0.50, 0.40, 0}, {0.50, 0.28, 0},
	{0.45, 0.68, 0}, {0.43, 0.55, 0}, {0.42, 0.45, 0}, {0.42, 0.35, 0},
	{0.40, 0.70, 0}, {0.37, 0.60, 0}, {0.35, 0.50, 0}, {0.34, 0.42, 0},
}

var thumbsUpPoints = [NumLandmarks]Point3D{
	{0.50, 0.80, 0},
	{0.55, 0.75, 0}, {0.58, 0.65, 0}, {0.58, 0.50, 0}, {0.58, 0.35, 0},
	{0.55, 0.70, -0.02}, {0.55, 0.68, -0.05}, {0.52, 0.70, -0.04}, {0.50, 0.72, -0.02},
	{0.50, 0.68, -0.02}, {0.50, 0.66, -0.05}, {0.47, 0.68, -0.04}, {0.45, 0.70, -0.02},
	{0.45, 0.70, -0.02}, {0.45, 0.68, -0.05}, {0.42, 0.70, -0.04}, {0.40, 0.72, -0.02},
	{0.40, 0.72, -0.02}, {0.40, 0.70, -0.05}, {0.37, 0.72, -0.04}, {0.35, 0.74, -0.02},
}

var fistPoints = [NumLandmarks]Point3D{
	{0.50, 0.80, 0},
	{0.55, 0.76, 0}, {0.58, 0.72, -0.01}, {0.56, 0.70, -0.03}, {0.50, 0.70, -0.04},
	{0.55, 0.70, -0.02}, {0.55, 0.66, -0.05}, {0.53, 0.69, -0.04}, {0.52, 0.72, -0.02},
	{0.50, 0.68, -0.02}, {0.50, 0.64, -0.05}, {0.48, 0.67, -0.04}, {0.47, 0.71, -0.02},
	{0.45, 0.70, -0.02}, {0.45, 0.66, -0.05}, {0.43, 0.69, -0.04}, {0.42, 0.72, -0.02},
	{0.40, 0.72, -0.02}, {0.40, 0.69, -0.05}, {0.39, 0.72, -0.04}, {0.39, 0.75, -0.02},
}

func rightHand(points [NumLandmarks]Point3D) HandLandmarks {
	return HandLandmarks{Points: points, Handedness: Right, Score: 0.95}
}

// OpenPalmLandmarks is a right hand, palm to camera, all five fingers out.
// The wrist sits at (0.5, 0.8).
func OpenPalmLandmarks() HandLandmarks { return rightHand(openPalmPoints) }

// ThumbsUpLandmarks is a right hand with only the thumb extended.
func ThumbsUpLandmarks() HandLandmarks { return rightHand(thumbsUpPoints) }

// FistLandmarks is a closed right fist with the thumb folded over.
func FistLandmarks() HandLandmarks { return rightHand(fistPoints) }
